package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const (
	errUniqueViolation     pq.ErrorCode = "23505"
	errForeignKeyViolation pq.ErrorCode = "23503"
)

// dbtx defines the interface for database and transactions
type dbtx interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresConfig holds the configuration for connecting to a Postgres database
type PostgresConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	DB           string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// PostgresStore implements the Store interface using a Postgres database
type PostgresStore struct {
	db dbtx
}

// NewPostgresDB creates a new Postgres database connection
func NewPostgresDB(ctx context.Context, cfg PostgresConfig) (*sql.DB, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	db, err := sql.Open("postgres", fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.DB,
		sslMode))
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

// NewPostgresStore creates a new PostgresStore instance
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetUserByEmail retrieves a user together with its role names
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, first_name, last_name, surname, email_verified, created_at, updated_at
		 FROM users
		 WHERE email=$1`, email)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return u, ErrNotFound
		}

		return u, fmt.Errorf("scan user: %w", err)
	}

	u.Roles, err = s.rolesByUserID(ctx, u.ID)
	if err != nil {
		return u, err
	}

	return u, nil
}

// GetRoles returns the role names of the user with the given email, or an empty slice if there is no such user
func (s *PostgresStore) GetRoles(ctx context.Context, email string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.name
		 FROM roles AS r
		 JOIN user_roles AS ur ON ur.role_id = r.id
		 JOIN users AS u ON ur.user_id = u.id
		 WHERE u.email=$1
		 ORDER BY r.name`, email)
	if err != nil {
		return nil, fmt.Errorf("select roles: %w", err)
	}

	return scanNames(rows)
}

// GetRoleID resolves a role name to its id
func (s *PostgresStore) GetRoleID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM roles WHERE name=$1", name).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}

		return 0, fmt.Errorf("select role: %w", err)
	}

	return id, nil
}

// InsertUserIfAbsent inserts the user and its role links in a single transaction.
// The unique email constraint is the only arbiter between concurrent inserts.
func (s *PostgresStore) InsertUserIfAbsent(ctx context.Context, r CreateUserRequest) (User, error) {
	var u User
	err := s.WithTx(ctx, func(tx *PostgresStore) error {
		row := tx.db.QueryRowContext(ctx,
			`INSERT INTO users (email, password_hash, first_name, last_name, surname, email_verified)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (email) DO NOTHING
			 RETURNING id, email, password_hash, first_name, last_name, surname, email_verified, created_at, updated_at`,
			r.Email,
			r.PasswordHash,
			r.FirstName,
			r.LastName,
			r.Surname,
			r.EmailVerified)

		var err error
		u, err = scanUser(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) || isPqErr(err, errUniqueViolation) {
				return ErrExists
			}

			return fmt.Errorf("insert user: %w", err)
		}

		for _, roleID := range r.RoleIDs {
			_, err := tx.db.ExecContext(ctx, "INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)", u.ID, roleID)
			if err != nil {
				if isPqErr(err, errForeignKeyViolation) {
					return fmt.Errorf("role %d: %w", roleID, ErrNotFound)
				}

				return fmt.Errorf("insert user role: %w", err)
			}
		}

		u.Roles, err = tx.rolesByUserID(ctx, u.ID)
		return err
	})
	if err != nil {
		return User{}, err
	}

	return u, nil
}

// Ping checks that the database is reachable
func (s *PostgresStore) Ping(ctx context.Context) error {
	db, ok := s.db.(*sql.DB)
	if !ok {
		return nil
	}

	return db.PingContext(ctx)
}

// WithTx executes the given function within a database transaction
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx *PostgresStore) error) error {
	db, ok := s.db.(*sql.DB)
	if !ok {
		return errors.New("already in transaction")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	sx := &PostgresStore{db: tx}
	if err = fn(sx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback: %v after: %w", rbErr, err)
		}

		return fmt.Errorf("transaction: %w", err)
	}

	if err = tx.Commit(); err != nil {
		if isPqErr(err, errUniqueViolation) {
			return ErrExists
		}

		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func (s *PostgresStore) rolesByUserID(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.name
		 FROM roles AS r
		 JOIN user_roles AS ur ON ur.role_id = r.id
		 WHERE ur.user_id=$1
		 ORDER BY r.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("select user roles: %w", err)
	}

	return scanNames(rows)
}

func scanUser(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.Surname,
		&u.EmailVerified,
		&u.CreatedAt,
		&u.UpdatedAt)
	return u, err
}

func scanNames(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	names := make([]string, 0, 1)
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		names = append(names, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}

	return names, nil
}

func isPqErr(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}

	return pqErr.Code == code
}
