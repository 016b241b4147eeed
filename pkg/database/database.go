package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/go-sql-driver/mysql"
	_ "github.com/microsoft/go-mssqldb"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Supported source drivers.
const (
	DriverMySQL     = "mysql"
	DriverSQLServer = "sqlserver"
	DriverSQLite    = "sqlite"
)

// SQLConfig describes a connection to the operational store. For sqlite,
// Name is the database file path.
type SQLConfig struct {
	Driver      string
	Host        string
	Port        int
	User        string
	Password    string
	Name        string
	PingTimeout time.Duration
}

// DSN renders the driver specific connection string.
func (c SQLConfig) DSN() (string, error) {
	switch c.Driver {
	case DriverMySQL, "":
		mc := mysql.NewConfig()
		mc.User = c.User
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.port()))
		mc.DBName = c.Name
		mc.ParseTime = true
		mc.Loc = time.UTC
		return mc.FormatDSN(), nil
	case DriverSQLServer:
		q := url.Values{}
		q.Set("database", c.Name)
		u := &url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(c.User, c.Password),
			Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.port())),
			RawQuery: q.Encode(),
		}
		return u.String(), nil
	case DriverSQLite:
		if c.Name == "" {
			return "", fmt.Errorf("sqlite database path is required")
		}
		return c.Name, nil
	default:
		return "", fmt.Errorf("unsupported SQL driver %q", c.Driver)
	}
}

func (c SQLConfig) driverName() string {
	if c.Driver == "" {
		return DriverMySQL
	}
	return c.Driver
}

func (c SQLConfig) port() int {
	if c.Port != 0 {
		return c.Port
	}
	switch c.Driver {
	case DriverSQLServer:
		return 1433
	default:
		return 3306
	}
}

// ConnectSQL opens the source store and verifies it answers a ping.
func ConnectSQL(ctx context.Context, cfg SQLConfig) (*sql.DB, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening SQL database: %w", err)
	}
	// One run, one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to SQL database (ping failed): %w", err)
	}
	return db, nil
}

// Rebind rewrites '?' placeholders of a static query for the driver's
// bind syntax. Query text never contains literal question marks.
func Rebind(driver, query string) string {
	if driver != DriverSQLServer {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("@p")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func ConnectMongo(ctx context.Context, connString string) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(connString))
	if err != nil {
		return nil, fmt.Errorf("error creating MongoDB client: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()

	err = client.Ping(pingCtx, readpref.Primary())
	if err != nil {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		_ = client.Disconnect(disconnectCtx)

		return nil, fmt.Errorf("error connecting to MongoDB (ping failed): %w", err)
	}
	return client, nil
}
