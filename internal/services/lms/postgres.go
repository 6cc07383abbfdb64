package lms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tcsync/internal/common"
	"github.com/ternarybob/tcsync/internal/interfaces"
	"github.com/ternarybob/tcsync/internal/models"
)

const uniqueViolation = "23505"

// userDependents are deleted before the user row, in this order
var userDependents = []string{
	"user_role",
	"course_instructor",
	"course_registration",
	"form_submissions",
	"user_certificates",
}

// PostgresStore implements interfaces.LocalStore against the LMS database
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger arbor.ILogger
}

var _ interfaces.LocalStore = (*PostgresStore)(nil)

// NewPostgresStore opens a connection pool and verifies it
func NewPostgresStore(ctx context.Context, config *common.DatabaseConfig, logger arbor.ILogger) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(config.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = int32(config.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	logger.Debug().
		Str("host", poolConfig.ConnConfig.Host).
		Str("database", poolConfig.ConnConfig.Database).
		Msg("LMS database connected")

	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Close closes the pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (*models.LocalUser, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, `
		SELECT user_id, first_name, last_name, COALESCE(email, ''), COALESCE(phone_number, ''), dob
		FROM users WHERE user_id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.LocalUser) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create user: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertUser(ctx, tx, user); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DeleteUsers removes each user with its dependent rows in its own transaction
func (s *PostgresStore) DeleteUsers(ctx context.Context, userIDs []string) error {
	for _, userID := range userIDs {
		if userID == "" {
			continue
		}
		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			for _, table := range userDependents {
				if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE user_id = $1", table), userID); err != nil {
					return fmt.Errorf("delete from %s: %w", table, err)
				}
			}
			tag, err := tx.Exec(ctx, "DELETE FROM users WHERE user_id = $1", userID)
			if err != nil {
				return fmt.Errorf("delete user: %w", err)
			}
			if tag.RowsAffected() == 0 {
				s.logger.Debug().Str("user_id", userID).Msg("User already absent")
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("delete user %s: %w", userID, err)
		}
	}
	return nil
}

func (s *PostgresStore) DeleteCertificates(ctx context.Context, certificateNumbers []string) error {
	for _, number := range certificateNumbers {
		if number == "" {
			continue
		}
		if _, err := s.pool.Exec(ctx, "DELETE FROM user_certificates WHERE certificate_number = $1", number); err != nil {
			return fmt.Errorf("delete certificate %s: %w", number, err)
		}
	}
	return nil
}

// SaveCertificate finds or creates the certificate holder and inserts the certificate
func (s *PostgresStore) SaveCertificate(ctx context.Context, record *models.CertificateRecord) (*models.SaveResult, error) {
	result := &models.SaveResult{}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		user, err := scanUser(tx.QueryRow(ctx, `
			SELECT user_id, first_name, last_name, COALESCE(email, ''), COALESCE(phone_number, ''), dob
			FROM users
			WHERE lower(email) = lower($1) OR phone_number = $2
			LIMIT 1`, record.Email, record.PhoneNumber))
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			user = &models.LocalUser{
				ID:          uuid.NewString(),
				FirstName:   record.FirstName,
				LastName:    record.LastName,
				Email:       record.Email,
				PhoneNumber: record.PhoneNumber,
			}
			if err := insertUser(ctx, tx, user); err != nil {
				return err
			}
			result.UserCreated = true
		case err != nil:
			return fmt.Errorf("find certificate holder: %w", err)
		}
		result.User = *user

		_, err = tx.Exec(ctx, `
			INSERT INTO user_certificates (
				user_id, certificate_number, completion_date, expiration_date,
				certificate_name, instructor_name
			) VALUES ($1, $2, $3, $4, $5, $6)`,
			user.ID, record.CertificateNumber, record.IssueDate, record.ExpiryDate,
			record.CourseName, record.Instructor)
		if err != nil {
			return classifyCertificateInsert(err, record.CertificateNumber)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, userID string, update *models.LocalUserUpdate) error {
	setClause, args := buildUserUpdate(update)
	if setClause == "" {
		return nil
	}
	args = append([]any{userID}, args...)

	tag, err := s.pool.Exec(ctx, "UPDATE users SET "+setClause+" WHERE user_id = $1", args...)
	if err != nil {
		return fmt.Errorf("update user %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update user %s: no such user", userID)
	}
	return nil
}

func insertUser(ctx context.Context, tx pgx.Tx, user *models.LocalUser) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	_, err := tx.Exec(ctx, `
		INSERT INTO users (
			user_id, first_name, last_name, email, phone_number, dob,
			time_zone, create_dtm, modify_dtm, active, text_notif, email_notif
		) VALUES ($1, $2, $3, $4, $5, $6, 'America/New_York', $7, $7, TRUE, TRUE, TRUE)`,
		user.ID, user.FirstName, user.LastName, nullIfEmpty(user.Email), nullIfEmpty(user.PhoneNumber),
		user.DateOfBirth, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return &models.ConflictError{Detail: "A user with this email or phone number already exists in LMS"}
		}
		return fmt.Errorf("insert user: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO user_role (user_id, role_id)
		SELECT $1, role_id FROM roles WHERE role_name = 'student'`, user.ID); err != nil {
		return fmt.Errorf("assign student role: %w", err)
	}
	return nil
}

func classifyCertificateInsert(err error, certificateNumber string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return fmt.Errorf("insert certificate: %w", err)
	}
	if pgErr.ConstraintName == "user_certificates_pkey" {
		return &models.ConflictError{Detail: "Certificate Number already in use"}
	}
	return &models.ConflictError{Detail: fmt.Sprintf("Certificate %s for a user already exists in LMS", certificateNumber)}
}

// buildUserUpdate returns the SET clause for the non-empty fields; placeholders start at $2
func buildUserUpdate(update *models.LocalUserUpdate) (string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)+1))
	}

	if update.HeadShot != "" {
		add("head_shot", update.HeadShot)
	}
	if update.PhotoID != "" {
		add("photo_id", update.PhotoID)
	}
	if update.EyeColor != "" {
		add("eye_color", update.EyeColor)
	}
	if update.Height > 0 {
		add("height", update.Height)
	}
	if update.Gender != "" {
		add("gender", update.Gender)
	}
	if update.PhoneNumber != "" {
		add("phone_number", update.PhoneNumber)
	}
	if update.Email != "" {
		add("email", update.Email)
	}
	if update.DateOfBirth != nil {
		add("dob", *update.DateOfBirth)
	}
	if update.Address != "" {
		add("address", update.Address)
	}
	if update.City != "" {
		add("city", update.City)
	}
	if update.State != "" {
		add("state", update.State)
	}
	if update.Zipcode != "" {
		add("zipcode", update.Zipcode)
	}

	if len(sets) == 0 {
		return "", nil
	}
	add("modify_dtm", time.Now().UTC())
	return strings.Join(sets, ", "), args
}

func scanUser(row pgx.Row) (*models.LocalUser, error) {
	var user models.LocalUser
	if err := row.Scan(&user.ID, &user.FirstName, &user.LastName, &user.Email, &user.PhoneNumber, &user.DateOfBirth); err != nil {
		return nil, err
	}
	return &user, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
