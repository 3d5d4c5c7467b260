package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate"
	migratedb "github.com/golang-migrate/migrate/database"
	"github.com/golang-migrate/migrate/database/mysql"
	"github.com/golang-migrate/migrate/database/postgres"
	_ "github.com/golang-migrate/migrate/source/file"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sisu-network/lib/log"
	"github.com/sisu-network/renbridge/config"
	"github.com/sisu-network/renbridge/types"
)

const (
	driverSqlite = "sqlite3"

	SubmissionKindEvm   = "evm"
	SubmissionKindRenVM = "renvm"
)

// Submission is a request accepted by the processor. Request is the JSON encoded request.
type Submission struct {
	Key     string
	Kind    string
	Request []byte
}

type Database interface {
	Init() error
	Close() error

	SaveSubmission(key, kind string, request []byte) error
	LoadSubmission(key string) (*Submission, error)
	// LoadUnfinishedSubmissions returns the submissions whose transaction has not reached a terminal
	// status.
	LoadUnfinishedSubmissions() ([]*Submission, error)

	SaveProgress(key string, progress types.ChainTransactionProgress) error
	LoadProgress(key, chain string) (*types.ChainTransactionProgress, error)

	// FindTransaction returns the transaction recorded for a submission or nil. A completed
	// submission without a recorded transaction returns a transaction with an empty TxidFormatted.
	FindTransaction(key, chain string) (*types.ChainTransaction, error)
}

type DefaultDatabase struct {
	cfg    *config.Config
	driver string
	db     *sql.DB
}

type dbLogger struct {
}

func (loggger *dbLogger) Printf(format string, v ...interface{}) {
	log.Infof(format, v...)
}

func (loggger *dbLogger) Verbose() bool {
	return true
}

func NewDb(cfg *config.Config) Database {
	driver := cfg.DbDriver
	if cfg.InMemory {
		driver = driverSqlite
	}

	return &DefaultDatabase{
		cfg:    cfg,
		driver: driver,
	}
}

func (d *DefaultDatabase) Init() error {
	err := d.Connect()
	if err != nil {
		log.Error("Failed to connect to DB. Err =", err)
		return err
	}

	err = d.DoMigration()
	if err != nil {
		log.Error("Cannot do migration. Err =", err)
		return err
	}

	return nil
}

func (d *DefaultDatabase) Connect() error {
	if d.driver == driverSqlite {
		database, err := sql.Open(driverSqlite, ":memory:")
		if err != nil {
			return err
		}
		// Every connection to :memory: opens a new database.
		database.SetMaxOpenConns(1)

		d.db = database
		log.Info("In memory db is created")
		return nil
	}

	host := d.cfg.DbHost
	if host == "" {
		return fmt.Errorf("DB host cannot be empty")
	}

	port := d.cfg.DbPort
	username := d.cfg.DbUsername
	password := d.cfg.DbPassword
	schema := d.cfg.DbSchema

	var url string
	switch d.driver {
	case config.DbDriverMysql:
		// Connect to the db
		database, err := sql.Open("mysql", fmt.Sprintf("%s:%s@tcp(%s:%d)/", username, password, host, port))
		if err != nil {
			return err
		}
		_, err = database.Exec("CREATE DATABASE IF NOT EXISTS " + schema)
		if err != nil {
			return err
		}
		database.Close()

		url = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?multiStatements=true", username, password, host, port, schema)

	case config.DbDriverPostgres:
		url = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", username, password, host, port, schema)

	default:
		return fmt.Errorf("unsupported db driver %s", d.driver)
	}

	database, err := sql.Open(d.driver, url)
	if err != nil {
		return err
	}

	d.db = database
	log.Info("Db is connected successfully")
	return nil
}

func (d *DefaultDatabase) DoMigration() error {
	if d.driver == driverSqlite {
		migrations, err := upMigrations(driverSqlite)
		if err != nil {
			return err
		}

		for _, migration := range migrations {
			if _, err := d.db.Exec(migration); err != nil {
				return err
			}
		}
		return nil
	}

	var driver migratedb.Driver
	var err error
	switch d.driver {
	case config.DbDriverMysql:
		driver, err = mysql.WithInstance(d.db, &mysql.Config{})
	case config.DbDriverPostgres:
		driver, err = postgres.WithInstance(d.db, &postgres.Config{})
	}
	if err != nil {
		return err
	}

	dir, err := MigrationsTempDir(d.driver)
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	m, err := migrate.NewWithDatabaseInstance("file://"+dir, d.driver, driver)
	if err != nil {
		return err
	}

	m.Log = &dbLogger{}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

func (d *DefaultDatabase) Close() error {
	if d.db == nil {
		return nil
	}

	return d.db.Close()
}

// rebind replaces ? placeholders with $n for postgres.
func (d *DefaultDatabase) rebind(query string) string {
	if d.driver != config.DbDriverPostgres {
		return query
	}

	var sb strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(c)
	}

	return sb.String()
}

func (d *DefaultDatabase) SaveSubmission(key, kind string, request []byte) error {
	query := "INSERT INTO submissions (submission_key, kind, request) VALUES (?, ?, ?) ON CONFLICT (submission_key) DO NOTHING"
	if d.driver == config.DbDriverMysql {
		query = "INSERT IGNORE INTO submissions (submission_key, kind, request) VALUES (?, ?, ?)"
	}

	_, err := d.db.Exec(d.rebind(query), key, kind, string(request))
	return err
}

func (d *DefaultDatabase) LoadSubmission(key string) (*Submission, error) {
	row := d.db.QueryRow(d.rebind("SELECT submission_key, kind, request FROM submissions WHERE submission_key = ?"), key)

	var request string
	submission := &Submission{}
	switch err := row.Scan(&submission.Key, &submission.Kind, &request); err {
	case nil:
		submission.Request = []byte(request)
		return submission, nil
	case sql.ErrNoRows:
		return nil, nil
	default:
		return nil, err
	}
}

func (d *DefaultDatabase) LoadUnfinishedSubmissions() ([]*Submission, error) {
	rows, err := d.db.Query(d.rebind(`SELECT s.submission_key, s.kind, s.request FROM submissions s
		WHERE NOT EXISTS (SELECT 1 FROM chain_transactions c WHERE c.submission_key = s.submission_key
		AND c.status IN (?, ?))`),
		types.ChainTransactionStatusDone.String(), types.ChainTransactionStatusReverted.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*Submission, 0)
	for rows.Next() {
		var request string
		submission := &Submission{}
		if err := rows.Scan(&submission.Key, &submission.Kind, &request); err != nil {
			return nil, err
		}
		submission.Request = []byte(request)
		ret = append(ret, submission)
	}

	return ret, rows.Err()
}

func (d *DefaultDatabase) SaveProgress(key string, progress types.ChainTransactionProgress) error {
	var txid []byte
	var txidFormatted, txindex, replaced string
	if progress.Transaction != nil {
		txid = progress.Transaction.Txid
		txidFormatted = progress.Transaction.TxidFormatted
		txindex = progress.Transaction.Txindex
	}
	if progress.Replaced != nil {
		replaced = progress.Replaced.TxidFormatted
	}

	var response sql.NullString
	if progress.Response != nil {
		bz, err := json.Marshal(progress.Response)
		if err != nil {
			return err
		}
		response = sql.NullString{String: string(bz), Valid: true}
	}

	columns := "submission_key, chain, status, confirmations, target, txid, txid_formatted, txindex, " +
		"replaced_txid_formatted, revert_reason, response"
	updated := []string{"status", "confirmations", "target", "txid", "txid_formatted", "txindex",
		"replaced_txid_formatted", "revert_reason", "response"}

	var query string
	if d.driver == config.DbDriverMysql {
		sets := make([]string, len(updated))
		for i, col := range updated {
			sets[i] = fmt.Sprintf("%s = VALUES(%s)", col, col)
		}
		query = fmt.Sprintf("INSERT INTO chain_transactions (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON DUPLICATE KEY UPDATE %s",
			columns, strings.Join(sets, ", "))
	} else {
		sets := make([]string, len(updated))
		for i, col := range updated {
			sets[i] = fmt.Sprintf("%s = excluded.%s", col, col)
		}
		query = fmt.Sprintf("INSERT INTO chain_transactions (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (submission_key, chain) DO UPDATE SET %s",
			columns, strings.Join(sets, ", "))
	}

	_, err := d.db.Exec(d.rebind(query), key, progress.Chain, progress.Status.String(), progress.Confirmations,
		progress.Target, txid, txidFormatted, txindex, replaced, progress.RevertReason, response)
	if err != nil {
		log.Errorf("Cannot save progress of %s, err = %s", key, err)
	}

	return err
}

func (d *DefaultDatabase) LoadProgress(key, chain string) (*types.ChainTransactionProgress, error) {
	row := d.db.QueryRow(d.rebind(`SELECT status, confirmations, target, txid, txid_formatted, txindex,
		replaced_txid_formatted, revert_reason, response FROM chain_transactions WHERE submission_key = ? AND chain = ?`),
		key, chain)

	var status, txidFormatted, txindex, replaced string
	var txid []byte
	var revertReason, response sql.NullString
	progress := &types.ChainTransactionProgress{Chain: chain}

	err := row.Scan(&status, &progress.Confirmations, &progress.Target, &txid, &txidFormatted, &txindex,
		&replaced, &revertReason, &response)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, err
	}

	if progress.Status, err = types.ParseChainTransactionStatus(status); err != nil {
		return nil, err
	}
	if txidFormatted != "" {
		progress.Transaction = &types.ChainTransaction{
			Chain:         chain,
			Txid:          txid,
			TxidFormatted: txidFormatted,
			Txindex:       txindex,
		}
	}
	if replaced != "" {
		progress.Replaced = &types.ChainTransaction{Chain: chain, TxidFormatted: replaced}
	}
	progress.RevertReason = revertReason.String
	if response.Valid && response.String != "" {
		progress.Response = &types.RenVMTxWithStatus{}
		if err := json.Unmarshal([]byte(response.String), progress.Response); err != nil {
			return nil, err
		}
	}

	return progress, nil
}

func (d *DefaultDatabase) FindTransaction(key, chain string) (*types.ChainTransaction, error) {
	progress, err := d.LoadProgress(key, chain)
	if err != nil || progress == nil {
		return nil, err
	}

	if progress.Transaction != nil {
		return progress.Transaction, nil
	}
	if progress.Status == types.ChainTransactionStatusDone {
		return &types.ChainTransaction{Chain: chain}, nil
	}

	return nil, nil
}
