package destination

import (
	"context"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const connectTimeout = 5 * time.Second

var schemas = map[string]string{
	"postgres": `CREATE TABLE IF NOT EXISTS %s (
	id         BIGSERIAL PRIMARY KEY,
	source     TEXT NOT NULL,
	checksum   CHAR(64) NOT NULL,
	format     VARCHAR(16) NOT NULL,
	data       BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	"mysql": `CREATE TABLE IF NOT EXISTS %s (
	id         BIGINT AUTO_INCREMENT PRIMARY KEY,
	source     VARCHAR(1024) NOT NULL,
	checksum   CHAR(64) NOT NULL,
	format     VARCHAR(16) NOT NULL,
	data       LONGBLOB NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
}

type row struct {
	Source   string `db:"source"`
	Checksum string `db:"checksum"`
	Format   string `db:"format"`
	Data     []byte `db:"data"`
}

// SQL inserts each payload as a row into a postgres or mysql table. The
// table is created on startup if it does not exist.
type SQL struct {
	db     *sqlx.DB
	driver string
	table  string
	log    *logrus.Entry
}

func NewSQL(ctx context.Context, driver, dsn, table string) (*SQL, error) {
	schema, ok := schemas[driver]
	if !ok {
		return nil, errors.Errorf("unsupported sql driver '%s'", driver)
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(connectCtx, driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to connect to %s", driver)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf(schema, table)); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "unable to create table '%s'", table)
	}

	return newSQL(db, driver, table), nil
}

func newSQL(db *sqlx.DB, driver, table string) *SQL {
	return &SQL{
		db:     db,
		driver: driver,
		table:  table,
		log: logrus.WithFields(logrus.Fields{
			"pkg":    "destination",
			"driver": driver,
		}),
	}
}

func (s *SQL) insertQuery() string {
	q := fmt.Sprintf("INSERT INTO %s (source, checksum, format, data) VALUES (:source, :checksum, :format, :data)", s.table)

	if s.driver == "postgres" {
		q += " RETURNING id"
	}

	return q
}

func (s *SQL) Write(ctx context.Context, p *Payload) (string, error) {
	r := &row{
		Source:   p.Source,
		Checksum: p.Checksum,
		Format:   p.Format,
		Data:     p.Data,
	}

	var id int64

	if s.driver == "postgres" {
		query, args, err := sqlx.Named(s.insertQuery(), r)
		if err != nil {
			return "", errors.Wrap(err, "unable to bind insert")
		}

		if err := s.db.QueryRowxContext(ctx, s.db.Rebind(query), args...).Scan(&id); err != nil {
			return "", errors.Wrapf(err, "unable to insert '%s'", p.Source)
		}
	} else {
		res, err := s.db.NamedExecContext(ctx, s.insertQuery(), r)
		if err != nil {
			return "", errors.Wrapf(err, "unable to insert '%s'", p.Source)
		}

		if id, err = res.LastInsertId(); err != nil {
			return "", errors.Wrap(err, "unable to get insert id")
		}
	}

	location := s.location(id)
	s.log.Debugf("inserted '%s' as %s", p.Source, location)

	return location, nil
}

func (s *SQL) location(id int64) string {
	return fmt.Sprintf("%s://%s/%d", s.driver, s.table, id)
}

func (s *SQL) Close() error {
	return s.db.Close()
}
