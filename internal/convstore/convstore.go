// Package convstore persists users, conversations and turns in Postgres,
// with a Redis cache in front of the hot recent-turns read path.
package convstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/workmate/config"
	"github.com/mohammad-safakhou/workmate/internal/assistant"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// User is an account that owns conversations.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Conversation groups turns under one user.
type Conversation struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
}

// Store implements conversation persistence over Postgres with an
// optional Redis cache. A nil cache disables caching, nothing else.
type Store struct {
	DB       *sql.DB
	cache    *redis.Client
	cacheTTL time.Duration
	logger   *log.Logger
}

// New opens Postgres and, when configured, Redis.
func New(ctx context.Context, cfg config.StorageConfig) (*Store, error) {
	dsn, err := cfg.Postgres.DSN()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{
		DB:       db,
		cacheTTL: cfg.Redis.CacheTTL,
		logger:   log.New(log.Writer(), "[CONVSTORE] ", log.LstdFlags),
	}

	if cfg.Redis.Host != "" {
		client := redis.NewClient(&redis.Options{
			Addr:        fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.Timeout,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			s.logger.Printf("redis unavailable, running without turn cache: %v", err)
		} else {
			s.cache = client
		}
	}
	return s, nil
}

// NewWithDB wraps an existing connection, cache disabled. Used by tests.
func NewWithDB(db *sql.DB) *Store {
	return &Store{
		DB:     db,
		logger: log.New(log.Writer(), "[CONVSTORE] ", log.LstdFlags),
	}
}

// CreateUser inserts a user and returns its ID.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (string, error) {
	id := uuid.New().String()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES ($1,$2,$3,NOW())`,
		id, email, passwordHash)
	if err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByEmail looks a user up for login.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = $1`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// CreateConversation starts a new conversation for a user.
func (s *Store) CreateConversation(ctx context.Context, userID, title string) (string, error) {
	id := uuid.New().String()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, title, created_at) VALUES ($1,$2,$3,NOW())`,
		id, userID, title)
	if err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}
	return id, nil
}

// GetConversation fetches one conversation, used for ownership checks.
func (s *Store) GetConversation(ctx context.Context, id string) (Conversation, error) {
	var c Conversation
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at FROM conversations WHERE id = $1`, id).
		Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

// ListConversations returns a user's conversations, newest first.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, user_id, title, created_at FROM conversations WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AppendTurn stores one turn and invalidates the conversation's cache entry.
func (s *Store) AppendTurn(ctx context.Context, turn assistant.ConversationTurn) (string, error) {
	id := turn.ID
	if id == "" {
		id = uuid.New().String()
	}
	var intentJSON []byte
	if turn.Intent != nil {
		var err error
		intentJSON, err = json.Marshal(turn.Intent)
		if err != nil {
			return "", fmt.Errorf("marshal intent: %w", err)
		}
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, text, intent, created_at) VALUES ($1,$2,$3,$4,$5,NOW())`,
		id, turn.ConversationID, turn.Role, turn.Text, nullableJSON(intentJSON))
	if err != nil {
		return "", fmt.Errorf("append turn: %w", err)
	}
	s.invalidateTurns(ctx, turn.ConversationID)
	return id, nil
}

// RecentTurns returns up to limit turns, most recent first. Serves from
// Redis when the conversation's window is cached.
func (s *Store) RecentTurns(ctx context.Context, conversationID string, limit int) ([]assistant.ConversationTurn, error) {
	if limit <= 0 {
		limit = 20
	}
	if cached, ok := s.cachedTurns(ctx, conversationID, limit); ok {
		return cached, nil
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, conversation_id, role, text, intent, created_at
		 FROM messages WHERE conversation_id = $1
		 ORDER BY created_at DESC LIMIT $2`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}
	defer rows.Close()

	var turns []assistant.ConversationTurn
	for rows.Next() {
		var (
			turn       assistant.ConversationTurn
			intentJSON []byte
		)
		if err := rows.Scan(&turn.ID, &turn.ConversationID, &turn.Role, &turn.Text, &intentJSON, &turn.CreatedAt); err != nil {
			return nil, err
		}
		if len(intentJSON) > 0 {
			var intent assistant.StructuredIntent
			if err := json.Unmarshal(intentJSON, &intent); err == nil {
				turn.Intent = &intent
			}
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.cacheTurns(ctx, conversationID, limit, turns)
	return turns, nil
}

func turnsCacheKey(conversationID string, limit int) string {
	return fmt.Sprintf("workmate:turns:%s:%d", conversationID, limit)
}

func (s *Store) cachedTurns(ctx context.Context, conversationID string, limit int) ([]assistant.ConversationTurn, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, turnsCacheKey(conversationID, limit)).Bytes()
	if err != nil {
		return nil, false
	}
	var turns []assistant.ConversationTurn
	if err := json.Unmarshal(raw, &turns); err != nil {
		return nil, false
	}
	return turns, true
}

func (s *Store) cacheTurns(ctx context.Context, conversationID string, limit int, turns []assistant.ConversationTurn) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(turns)
	if err != nil {
		return
	}
	ttl := s.cacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if err := s.cache.Set(ctx, turnsCacheKey(conversationID, limit), raw, ttl).Err(); err != nil {
		s.logger.Printf("cache write failed for %s: %v", conversationID, err)
	}
}

func (s *Store) invalidateTurns(ctx context.Context, conversationID string) {
	if s.cache == nil {
		return
	}
	pattern := fmt.Sprintf("workmate:turns:%s:*", conversationID)
	keys, err := s.cache.Keys(ctx, pattern).Result()
	if err != nil || len(keys) == 0 {
		return
	}
	if err := s.cache.Del(ctx, keys...).Err(); err != nil {
		s.logger.Printf("cache invalidation failed for %s: %v", conversationID, err)
	}
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
