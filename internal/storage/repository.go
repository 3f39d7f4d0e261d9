package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/katabame/pubview-bot/internal/rank"
)

// Repository handles all database operations
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository with SQLite
func NewRepository(dbPath string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := &Repository{db: db}

	// Run migrations
	if err := repo.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate creates the database schema
func (r *Repository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			discord_id VARCHAR(20) PRIMARY KEY,
			riot_puuid VARCHAR(100) UNIQUE NOT NULL,
			game_name VARCHAR(50),
			tag_line VARCHAR(10),
			tier VARCHAR(15),
			division VARCHAR(5),
			league_points INTEGER,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sections (
			role_id VARCHAR(20) PRIMARY KEY,
			section_name VARCHAR(100) UNIQUE NOT NULL,
			notification_channel_id VARCHAR(20) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_puuid ON users(riot_puuid)`,
	}

	for _, migration := range migrations {
		if _, err := r.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// User operations

// UpsertUser registers a member's Riot account. A re-registration by
// the same member overwrites the previous row (last registration wins).
func (r *Repository) UpsertUser(u *User) error {
	_, err := r.db.Exec(
		`INSERT INTO users (discord_id, riot_puuid, game_name, tag_line, tier, division, league_points)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(discord_id) DO UPDATE SET
			riot_puuid = excluded.riot_puuid,
			game_name = excluded.game_name,
			tag_line = excluded.tag_line,
			tier = excluded.tier,
			division = excluded.division,
			league_points = excluded.league_points,
			updated_at = CURRENT_TIMESTAMP`,
		u.DiscordID, u.PUUID, u.GameName, u.TagLine, u.Tier, u.Division, u.LeaguePoints,
	)
	return err
}

// DeleteUser removes a member's registration. Returns true when a row
// was actually deleted.
func (r *Repository) DeleteUser(discordID string) (bool, error) {
	result, err := r.db.Exec(`DELETE FROM users WHERE discord_id = ?`, discordID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetUser finds a registered user by Discord ID
func (r *Repository) GetUser(discordID string) (*User, error) {
	u := &User{}
	err := r.db.QueryRow(
		`SELECT discord_id, riot_puuid, game_name, tag_line, tier, division, league_points, created_at, updated_at
		 FROM users WHERE discord_id = ?`,
		discordID,
	).Scan(&u.DiscordID, &u.PUUID, &u.GameName, &u.TagLine, &u.Tier, &u.Division, &u.LeaguePoints, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetAllUsers returns every registered user in registration order
func (r *Repository) GetAllUsers() ([]*User, error) {
	return r.queryUsers(
		`SELECT discord_id, riot_puuid, game_name, tag_line, tier, division, league_points, created_at, updated_at
		 FROM users ORDER BY rowid`)
}

// GetUsersWithStanding returns every user whose standing columns are set
func (r *Repository) GetUsersWithStanding() ([]*User, error) {
	return r.queryUsers(
		`SELECT discord_id, riot_puuid, game_name, tag_line, tier, division, league_points, created_at, updated_at
		 FROM users WHERE tier IS NOT NULL AND division IS NOT NULL ORDER BY rowid`)
}

func (r *Repository) queryUsers(query string, args ...interface{}) ([]*User, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u := &User{}
		if err := rows.Scan(&u.DiscordID, &u.PUUID, &u.GameName, &u.TagLine, &u.Tier, &u.Division, &u.LeaguePoints, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

// StandingUpdate is one staged standing change for a batch commit.
// A nil Standing clears the stored columns.
type StandingUpdate struct {
	DiscordID string
	Standing  *rank.Standing
}

// ApplyStandingUpdates commits all staged standing changes in one
// transaction, the reconciliation job's end-of-run batch.
func (r *Repository) ApplyStandingUpdates(updates []StandingUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, upd := range updates {
		if upd.Standing != nil {
			_, err = tx.Exec(
				`UPDATE users SET tier = ?, division = ?, league_points = ?, updated_at = ? WHERE discord_id = ?`,
				string(upd.Standing.Tier), string(upd.Standing.Division), upd.Standing.LeaguePoints, time.Now(), upd.DiscordID,
			)
		} else {
			_, err = tx.Exec(
				`UPDATE users SET tier = NULL, division = NULL, league_points = NULL, updated_at = ? WHERE discord_id = ?`,
				time.Now(), upd.DiscordID,
			)
		}
		if err != nil {
			return fmt.Errorf("failed to update standing for %s: %w", upd.DiscordID, err)
		}
	}

	return tx.Commit()
}

// SetStanding force-sets one user's stored standing (debug command).
// Returns true when the user exists.
func (r *Repository) SetStanding(discordID string, s rank.Standing) (bool, error) {
	result, err := r.db.Exec(
		`UPDATE users SET tier = ?, division = ?, league_points = ?, updated_at = ? WHERE discord_id = ?`,
		string(s.Tier), string(s.Division), s.LeaguePoints, time.Now(), discordID,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetAllStandings force-sets every user's stored standing (debug
// command). Returns the number of rows updated.
func (r *Repository) SetAllStandings(s rank.Standing) (int64, error) {
	result, err := r.db.Exec(
		`UPDATE users SET tier = ?, division = ?, league_points = ?, updated_at = ?`,
		string(s.Tier), string(s.Division), s.LeaguePoints, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Section operations

// UpsertSection registers a joinable section
func (r *Repository) UpsertSection(s *Section) error {
	_, err := r.db.Exec(
		`INSERT INTO sections (role_id, section_name, notification_channel_id) VALUES (?, ?, ?)
		 ON CONFLICT(role_id) DO UPDATE SET
			section_name = excluded.section_name,
			notification_channel_id = excluded.notification_channel_id`,
		s.RoleID, s.Name, s.NotificationChannelID,
	)
	return err
}

// DeleteSection removes a section. Returns true when a row was deleted.
func (r *Repository) DeleteSection(roleID string) (bool, error) {
	result, err := r.db.Exec(`DELETE FROM sections WHERE role_id = ?`, roleID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetSection finds a section by its role ID
func (r *Repository) GetSection(roleID string) (*Section, error) {
	s := &Section{}
	err := r.db.QueryRow(
		`SELECT role_id, section_name, notification_channel_id, created_at FROM sections WHERE role_id = ?`,
		roleID,
	).Scan(&s.RoleID, &s.Name, &s.NotificationChannelID, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetAllSections returns every registered section
func (r *Repository) GetAllSections() ([]*Section, error) {
	rows, err := r.db.Query(
		`SELECT role_id, section_name, notification_channel_id, created_at FROM sections ORDER BY section_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sections []*Section
	for rows.Next() {
		s := &Section{}
		if err := rows.Scan(&s.RoleID, &s.Name, &s.NotificationChannelID, &s.CreatedAt); err != nil {
			return nil, err
		}
		sections = append(sections, s)
	}

	return sections, rows.Err()
}
