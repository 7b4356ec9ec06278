package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/MeowSalty/transtat/errs"
)

// 可重试的 MySQL 错误号
var transientMySQLErrors = map[uint16]bool{
	1040: true, // Too many connections
	1053: true, // Server shutdown in progress
	1205: true, // Lock wait timeout exceeded
	1213: true, // Deadlock found
	1317: true, // Query execution was interrupted
}

// classify 将底层存储错误归类
//
// 上下文取消与超时原样返回（由调用方决定）；校验错误原样返回；
// 其余错误统一包装为 StorageUnavailable，并根据驱动错误码标注是否可重试。
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, errs.ErrValidation) {
		return err
	}
	return errs.Unavailable(op+" 失败", isTransient(err), err)
}

// isTransient 判断错误是否为暂时性故障
func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"): // connection exception
			return true
		case strings.HasPrefix(pgErr.Code, "53"): // insufficient resources
			return true
		case strings.HasPrefix(pgErr.Code, "57P"): // operator intervention
			return true
		case pgErr.Code == "40001", pgErr.Code == "40P01": // serialization failure, deadlock
			return true
		}
		return false
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}

	var myErr *mysqlDriver.MySQLError
	if errors.As(err, &myErr) {
		return transientMySQLErrors[myErr.Number]
	}
	if errors.Is(err, mysqlDriver.ErrInvalidConn) {
		return true
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
