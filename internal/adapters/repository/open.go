package repository

import (
	"context"
	"fmt"
)

// Supported store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Open returns the store for driver. dsn is a file path for sqlite and a
// go-sql-driver DSN for mysql; it is ignored for memory.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (Store, error) {
	switch driver {
	case DriverMemory, "":
		return NewMemStore(opts...), nil
	case DriverSQLite:
		if dsn == "" {
			dsn = "enigma.db"
		}
		return OpenSQLite(ctx, dsn, opts...)
	case DriverMySQL:
		return OpenMySQL(ctx, dsn, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
