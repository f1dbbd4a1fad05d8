package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	//mysql driver
	_ "github.com/go-sql-driver/mysql"
	log "github.com/sirupsen/logrus"
)

const (
	createTableQuery = `CREATE TABLE IF NOT EXISTS UserRecords (
		user_id varchar(255) NOT NULL,
		first_name varchar(100) NOT NULL DEFAULT '',
		last_name varchar(100) NOT NULL DEFAULT '',
		username varchar(100) NOT NULL DEFAULT '',
		email varchar(255) NOT NULL DEFAULT '',
		gender varchar(50) NOT NULL DEFAULT '',
		location varchar(255) NOT NULL DEFAULT '',
		product_name varchar(255) NOT NULL DEFAULT '',
		product_description text,
		product_picture mediumblob,
		trade_request text,
		PRIMARY KEY (user_id))`

	selectRecordQuery = `SELECT user_id, first_name, last_name, username, email, gender, location,
		product_name, product_description, product_picture, trade_request
		FROM UserRecords
		WHERE user_id = ?;`

	upsertRecordQuery = `INSERT INTO UserRecords (user_id, first_name, last_name, username, email, gender, location,
		product_name, product_description, product_picture, trade_request)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
		first_name = VALUES(first_name), last_name = VALUES(last_name), username = VALUES(username),
		email = VALUES(email), gender = VALUES(gender), location = VALUES(location),
		product_name = VALUES(product_name), product_description = VALUES(product_description),
		product_picture = VALUES(product_picture), trade_request = VALUES(trade_request);`
)

//Client for SQL database
type Client struct {
	db *sql.DB
}

//NewClient returns a MySQL client
func NewClient(dsn string, credentials string) (*Client, error) {
	connString := fmt.Sprintf("%s@/%s?interpolateParams=true&parseTime=true", credentials, dsn)
	db, err := sql.Open("mysql", connString)
	if err != nil {
		log.WithError(err).Error("error connecting to db")
		return nil, err
	}

	if err = db.Ping(); err != nil {
		log.WithError(err).Error("error establishing active connection to db")
		return nil, err
	}
	return newClientFromDB(db)
}

func newClientFromDB(db *sql.DB) (*Client, error) {
	if _, err := db.Exec(createTableQuery); err != nil {
		log.WithError(err).Error("error creating UserRecords table")
		return nil, err
	}
	return &Client{db: db}, nil
}

//GetRecord will look up the record stored for the provided user ID
func (c *Client) GetRecord(ctx context.Context, userID string) (UserRecord, Status) {
	var ur UserRecord
	var description, tradeRequest sql.NullString
	err := c.db.QueryRowContext(ctx, selectRecordQuery, userID).Scan(
		&ur.UserID, &ur.FirstName, &ur.LastName, &ur.Username, &ur.Email, &ur.Gender, &ur.Location,
		&ur.ProductName, &description, &ur.ProductPicture, &tradeRequest)
	if errors.Is(err, sql.ErrNoRows) {
		log.WithField("UserID", userID).Debug("no record stored for user")
		return UserRecord{}, NOT_FOUND
	}
	if err != nil {
		log.WithError(err).WithField("UserID", userID).Error("could not retrieve user record")
		return UserRecord{}, BACKEND_ERROR
	}
	ur.ProductDescription = validateString(description)
	ur.TradeRequest = validateString(tradeRequest)
	return ur, OK
}

//PutRecord will insert the record, replacing every field of an existing record with the same user ID
func (c *Client) PutRecord(ctx context.Context, record UserRecord) Status {
	if record.UserID == "" {
		log.Error("refusing to store a record without a user ID")
		return BACKEND_ERROR
	}
	_, err := c.db.ExecContext(ctx, upsertRecordQuery,
		record.UserID, record.FirstName, record.LastName, record.Username, record.Email, record.Gender, record.Location,
		record.ProductName, record.ProductDescription, record.ProductPicture, record.TradeRequest)
	if err != nil {
		log.WithError(err).WithField("UserID", record.UserID).Error("could not store user record")
		return BACKEND_ERROR
	}
	log.WithField("UserID", record.UserID).Info("stored user record")
	return UPSERTED
}

func validateString(value sql.NullString) string {
	if value.Valid {
		return value.String
	}
	return ""
}

//ActiveConnection will check if still connected to DB
func (c *Client) ActiveConnection(ctx context.Context) bool {
	if err := c.db.PingContext(ctx); err != nil {
		log.WithError(err).Error("could not connect to db")
		return false
	}
	return true
}

//Close releases the connection pool
func (c *Client) Close() error {
	return c.db.Close()
}
