package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/netchess/internal/record"
	"github.com/park285/netchess/pkg/protocol"
)

// GameResult is one finished game as the relay saw it.
type GameResult struct {
	GameID      string
	WhiteName   string
	BlackName   string
	Result      string // white | black | draw | ""
	Termination string // checkmate | stalemate | end | leave
	Moves       []string
	StartedAt   time.Time
	EndedAt     time.Time
}

// ResultSink receives finished games.
type ResultSink interface {
	SaveResult(ctx context.Context, g GameResult) error
}

const schemaSQL = `CREATE TABLE IF NOT EXISTS netchess_games (
    game_id     TEXT PRIMARY KEY,
    white_name  TEXT NOT NULL,
    black_name  TEXT NOT NULL,
    result      TEXT NOT NULL,
    termination TEXT NOT NULL,
    moves_uci   JSONB NOT NULL,
    moves_san   JSONB NOT NULL,
    pgn         TEXT NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    ended_at    TIMESTAMPTZ NOT NULL,
    duration_ms BIGINT NOT NULL
)`

type ResultRepository struct {
	db *sql.DB
}

func NewResultRepository(databaseURL string) (*ResultRepository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &ResultRepository{db: db}, nil
}

func NewResultRepositoryDB(db *sql.DB) *ResultRepository { return &ResultRepository{db: db} }

func (r *ResultRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts a finished game with its PGN.
func (r *ResultRepository) SaveResult(ctx context.Context, g GameResult) error {
	if r == nil || r.db == nil {
		return nil
	}
	row, err := resultRow(g)
	if err != nil {
		return err
	}

	q := `INSERT INTO netchess_games (
        game_id, white_name, black_name, result, termination,
        moves_uci, moves_san, pgn, started_at, ended_at, duration_ms
      ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
      ON CONFLICT (game_id) DO UPDATE SET
        result=EXCLUDED.result,
        termination=EXCLUDED.termination,
        moves_uci=EXCLUDED.moves_uci,
        moves_san=EXCLUDED.moves_san,
        pgn=EXCLUDED.pgn,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err = r.db.ExecContext(ctx, q, row.args()...)
	return err
}

type resultRecord struct {
	g        GameResult
	uciJSON  string
	sanJSON  string
	pgn      string
	duration int64
}

func (rr resultRecord) args() []any {
	return []any{
		rr.g.GameID, rr.g.WhiteName, rr.g.BlackName, rr.g.Result, rr.g.Termination,
		rr.uciJSON, rr.sanJSON, rr.pgn, rr.g.StartedAt, rr.g.EndedAt, rr.duration,
	}
}

// resultRow derives the stored columns. Relayed moves are not validated by
// the server, so a move list that fails to annotate is stored without SAN.
func resultRow(g GameResult) (resultRecord, error) {
	if strings.TrimSpace(g.GameID) == "" {
		return resultRecord{}, fmt.Errorf("game id is required")
	}
	if g.EndedAt.IsZero() {
		g.EndedAt = time.Now().UTC()
	}
	if g.StartedAt.IsZero() {
		g.StartedAt = g.EndedAt
	}

	rec, err := record.Build(g.GameID, g.WhiteName, g.BlackName, g.Moves, g.Result, g.EndedAt)
	if err != nil {
		rec = protocol.GameRecord{Name: g.GameID, White: g.WhiteName, Black: g.BlackName, Moves: g.Moves, Result: g.Result, SavedAt: g.EndedAt}
	}
	if g.Result == "" {
		g.Result = rec.Result
	}
	rec.Result = g.Result

	moves := g.Moves
	if moves == nil {
		moves = []string{}
	}
	san := rec.SAN
	if san == nil {
		san = []string{}
	}
	uciRaw, _ := json.Marshal(moves)
	sanRaw, _ := json.Marshal(san)
	d := g.EndedAt.Sub(g.StartedAt).Milliseconds()
	if d < 0 {
		d = 0
	}
	return resultRecord{
		g:        g,
		uciJSON:  string(uciRaw),
		sanJSON:  string(sanRaw),
		pgn:      record.PGN(rec, g.Termination),
		duration: d,
	}, nil
}
