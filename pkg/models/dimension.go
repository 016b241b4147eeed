package models

// Truck is a row of the truck dimension.
type Truck struct {
	TruckID          int64  `parquet:"truck_id"`
	TruckName        string `parquet:"truck_name"`
	TruckDescription string `parquet:"truck_description"`
	HasCardReader    bool   `parquet:"has_card_reader"`
	FSARating        int64  `parquet:"fsa_rating"`
}

// PaymentMethod is a row of the payment method dimension.
type PaymentMethod struct {
	PaymentMethodID int64  `parquet:"payment_method_id"`
	PaymentMethod   string `parquet:"payment_method"`
}
