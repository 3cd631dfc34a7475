package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/mcdev12/gavel/go/internal/apperr"
	"github.com/mcdev12/gavel/go/internal/dbconfig"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/mcdev12/gavel/go/internal/sequencer"
	"github.com/mcdev12/gavel/go/internal/store/memstore"
	"github.com/mcdev12/gavel/go/internal/users"
	"github.com/shopspring/decimal"
)

// seed_db loads a seed file (the same format the in-memory store reads) into
// Postgres. Records whose id already exists are skipped.
//
//	go run ./go/internal/tools/seed_db seed.yaml
func main() {
	_ = godotenv.Load()

	path := "seed.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the seed file
	seed, err := memstore.LoadSeedFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	pool, err := dbconfig.Open(ctx, dbconfig.NewConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := dbconfig.EnsureSchema(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// 3) Insert and count
	s := &seeder{pool: pool, users: users.NewRepository(pool), auctions: sequencer.NewRepository(pool), now: time.Now()}
	s.seedUsers(ctx, seed)
	s.seedCatalog(ctx, seed)
	s.seedAuctions(ctx, seed)

	// 4) Report summary
	fmt.Printf("Inserted %d, skipped %d, errors %d\n", s.inserted, s.skipped, s.errs)
	if s.errs > 0 {
		os.Exit(1)
	}
}

type seeder struct {
	pool     *pgxpool.Pool
	users    *users.Repository
	auctions *sequencer.Repository
	now      time.Time

	inserted int
	skipped  int
	errs     int
}

func (s *seeder) fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	s.errs++
}

func (s *seeder) seedUsers(ctx context.Context, seed *memstore.Seed) {
	for _, u := range seed.Users {
		id, err := uuid.Parse(u.ID)
		if err != nil {
			s.fail("invalid id for user %q: %v", u.Name, err)
			continue
		}
		if _, err := s.users.GetUser(ctx, id); err == nil {
			s.skipped++
			continue
		} else if !apperr.IsKind(err, apperr.KindNotFound) {
			s.fail("error loading user %s: %v", id, err)
			continue
		}

		role := models.UserRole(u.Role)
		if role == "" {
			role = models.UserRoleParticipant
		}
		err = s.users.CreateUser(ctx, &models.User{
			ID:        id,
			Name:      u.Name,
			Email:     u.Email,
			Role:      role,
			Status:    models.UserStatusActive,
			CreatedAt: s.now,
		})
		if err != nil {
			s.fail("error inserting user %s: %v", id, err)
			continue
		}
		s.inserted++
	}
}

func (s *seeder) seedCatalog(ctx context.Context, seed *memstore.Seed) {
	for _, c := range seed.Categories {
		tag, err := s.pool.Exec(ctx, `
            INSERT INTO categories (id, name, created_at) VALUES ($1, $2, $3)
            ON CONFLICT (id) DO NOTHING
        `, c.ID, c.Name, s.now)
		if err != nil {
			s.fail("error inserting category %s: %v", c.ID, err)
			continue
		}
		s.count(tag.RowsAffected())
	}

	for _, it := range seed.Items {
		initial, err := decimal.NewFromString(it.InitialValue)
		if err != nil {
			s.fail("item %q initial_value: %v", it.Name, err)
			continue
		}
		tag, err := s.pool.Exec(ctx, `
            INSERT INTO items (
              id, name, description, category_id, initial_value,
              minimum_increment, current_value, created_at, updated_at
            ) VALUES (
              $1,$2,$3,$4,$5,$6,$5,$7,$7
            )
            ON CONFLICT (id) DO NOTHING
        `,
			it.ID, it.Name, it.Description, it.Category, initial.StringFixed(2),
			it.MinimumIncrement, s.now,
		)
		if err != nil {
			s.fail("error inserting item %s: %v", it.ID, err)
			continue
		}
		s.count(tag.RowsAffected())
	}
}

func (s *seeder) seedAuctions(ctx context.Context, seed *memstore.Seed) {
	for _, a := range seed.Auctions {
		id, err := uuid.Parse(a.ID)
		if err != nil {
			s.fail("invalid id for auction %q: %v", a.Name, err)
			continue
		}
		if _, err := s.auctions.GetAuction(ctx, id); err == nil {
			s.skipped++
			continue
		}
		createdBy, err := uuid.Parse(a.CreatedBy)
		if err != nil {
			s.fail("auction %q created_by: %v", a.Name, err)
			continue
		}
		itemIDs := make([]uuid.UUID, 0, len(a.Items))
		for _, raw := range a.Items {
			itemID, err := uuid.Parse(raw)
			if err != nil {
				s.fail("auction %q item: %v", a.Name, err)
				continue
			}
			itemIDs = append(itemIDs, itemID)
		}

		start := s.now.Add(a.StartIn)
		err = s.auctions.CreateAuction(ctx, &models.Auction{
			ID:              id,
			Name:            a.Name,
			Status:          models.AuctionStatusScheduled,
			ItemIDs:         itemIDs,
			StartDate:       start,
			ExpectedEndDate: start.Add(a.Duration),
			CreatedBy:       createdBy,
			CreatedAt:       s.now,
			UpdatedAt:       s.now,
		})
		if err != nil {
			s.fail("error inserting auction %s: %v", id, err)
			continue
		}
		s.inserted++
	}
}

func (s *seeder) count(rows int64) {
	if rows == 1 {
		s.inserted++
	} else {
		s.skipped++
	}
}
