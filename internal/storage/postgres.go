package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/xaenox/micronote/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type PostgresStorage struct {
	db *sqlx.DB
}

var _ Storage = (*PostgresStorage)(nil)

func NewPostgresStorage(ctx context.Context, config DatabaseConfig) (*PostgresStorage, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db}

	if err := storage.initializeSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

// DB exposes the pool so the rate limiter can share it.
func (s *PostgresStorage) DB() *sqlx.DB {
	return s.db
}

func (s *PostgresStorage) initializeSchema(ctx context.Context) error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

const userColumns = `id, name, plan, telegram_id, whatsapp_id, notes_count, created_at`

func (s *PostgresStorage) GetUserByChannel(ctx context.Context, channel models.Channel, senderID string) (*models.User, error) {
	var column string
	switch channel {
	case models.ChannelTelegram:
		column = "telegram_id"
	case models.ChannelWhatsApp:
		column = "whatsapp_id"
	default:
		return nil, fmt.Errorf("unknown channel %q", channel)
	}

	var user models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = $1`
	if err := s.db.GetContext(ctx, &user, query, senderID); err != nil {
		return nil, notFound(err, "error getting user by channel")
	}
	return &user, nil
}

func (s *PostgresStorage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if err := s.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, notFound(err, "error getting user")
	}
	return &user, nil
}

func (s *PostgresStorage) CreateUser(ctx context.Context, user *models.User) error {
	if user.Plan == "" {
		user.Plan = models.PlanFree
	}

	query := `
		INSERT INTO users (name, plan, telegram_id, whatsapp_id)
		VALUES (:name, :plan, :telegram_id, :whatsapp_id)
		RETURNING id, created_at`

	rows, err := s.db.NamedQueryContext(ctx, query, user)
	if err != nil {
		return fmt.Errorf("error creating user: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&user.ID, &user.CreatedAt); err != nil {
			return fmt.Errorf("error scanning user: %w", err)
		}
	}
	return rows.Err()
}

func (s *PostgresStorage) IncrementNoteCount(ctx context.Context, userID int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET notes_count = notes_count + 1 WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("error incrementing notes count: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStorage) SaveIncomingMessage(ctx context.Context, msg *models.IncomingMessage) error {
	var metadata any
	if len(msg.Metadata) > 0 {
		metadata = []byte(msg.Metadata)
	}

	query := `
		INSERT INTO incoming_messages (user_id, sender_id, channel, content, metadata, ai_tag, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := s.db.QueryRowxContext(ctx, query,
		msg.UserID,
		msg.SenderID,
		msg.Channel,
		msg.Content,
		metadata,
		msg.AITag,
		msg.ProcessedAt,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("error saving incoming message: %w", err)
	}
	return nil
}

type noteRow struct {
	models.Note
	MetadataJSON []byte `db:"metadata"`
}

func (s *PostgresStorage) CreateNote(ctx context.Context, note *models.Note) error {
	if err := note.Validate(); err != nil {
		return err
	}
	metadata, err := models.MarshalMetadata(note.Metadata)
	if err != nil {
		return err
	}

	createdAt := note.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO notes (user_id, incoming_message_id, note_type, title, content, metadata,
			is_completed, is_favorite, priority, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		RETURNING id, created_at, updated_at`

	err = s.db.QueryRowxContext(ctx, query,
		note.UserID,
		note.IncomingMessageID,
		note.Type,
		note.Title,
		note.Content,
		metadata,
		note.IsCompleted,
		note.IsFavorite,
		note.Priority,
		createdAt,
	).Scan(&note.ID, &note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error creating note: %w", err)
	}
	return nil
}

func (s *PostgresStorage) ListNotes(ctx context.Context, userID int64, limit int) ([]*models.Note, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, user_id, incoming_message_id, note_type, title, content, metadata,
			is_completed, is_favorite, priority, created_at, updated_at
		FROM notes
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	var rows []noteRow
	if err := s.db.SelectContext(ctx, &rows, query, userID, limit); err != nil {
		return nil, fmt.Errorf("error querying notes: %w", err)
	}

	notes := make([]*models.Note, 0, len(rows))
	for i := range rows {
		note := rows[i].Note
		metadata, err := models.UnmarshalMetadata(note.Type, rows[i].MetadataJSON)
		if err != nil {
			return nil, fmt.Errorf("error decoding metadata of note %d: %w", note.ID, err)
		}
		note.Metadata = metadata
		notes = append(notes, &note)
	}
	return notes, nil
}

const reminderColumns = `id, note_id, user_id, remind_at, recurrence, recurrence_end, channel,
	message, is_sent, sent_at, created_at`

func (s *PostgresStorage) CreateReminder(ctx context.Context, reminder *models.Reminder) error {
	query := `
		INSERT INTO reminders (note_id, user_id, remind_at, recurrence, recurrence_end, channel, message)
		VALUES (:note_id, :user_id, :remind_at, :recurrence, :recurrence_end, :channel, :message)
		RETURNING id, created_at`

	rows, err := s.db.NamedQueryContext(ctx, query, reminder)
	if err != nil {
		return fmt.Errorf("error creating reminder: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&reminder.ID, &reminder.CreatedAt); err != nil {
			return fmt.Errorf("error scanning reminder: %w", err)
		}
	}
	return rows.Err()
}

func (s *PostgresStorage) DueReminders(ctx context.Context, now time.Time, limit int) ([]*models.Reminder, error) {
	query := `SELECT ` + reminderColumns + `
		FROM reminders
		WHERE is_sent = false AND remind_at <= $1
		ORDER BY remind_at, id
		LIMIT $2`

	var reminders []*models.Reminder
	if err := s.db.SelectContext(ctx, &reminders, query, now, limit); err != nil {
		return nil, fmt.Errorf("error querying due reminders: %w", err)
	}
	return reminders, nil
}

func (s *PostgresStorage) MarkReminderSent(ctx context.Context, id int64, sentAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET is_sent = true, sent_at = $1 WHERE id = $2`, sentAt, id)
	if err != nil {
		return fmt.Errorf("error marking reminder sent: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStorage) RescheduleReminder(ctx context.Context, id int64, next time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET remind_at = $1, is_sent = false WHERE id = $2`, next, id)
	if err != nil {
		return fmt.Errorf("error rescheduling reminder: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

func notFound(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
