package memstore

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Seed describes records loaded into an empty store at startup.
type Seed struct {
	Users []struct {
		ID    string `yaml:"id"`
		Name  string `yaml:"name"`
		Email string `yaml:"email"`
		Role  string `yaml:"role"`
	} `yaml:"users"`
	Categories []struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"categories"`
	Items []struct {
		ID               string `yaml:"id"`
		Name             string `yaml:"name"`
		Description      string `yaml:"description"`
		Category         string `yaml:"category"`
		InitialValue     string `yaml:"initial_value"`
		MinimumIncrement string `yaml:"minimum_increment"`
	} `yaml:"items"`
	Auctions []struct {
		ID        string        `yaml:"id"`
		Name      string        `yaml:"name"`
		CreatedBy string        `yaml:"created_by"`
		Items     []string      `yaml:"items"`
		StartIn   time.Duration `yaml:"start_in"`
		Duration  time.Duration `yaml:"duration"`
	} `yaml:"auctions"`
}

// LoadSeedFile parses a YAML seed file.
func LoadSeedFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &seed, nil
}

// Apply inserts the seed's records. Auctions are created Scheduled.
func (s *Store) Apply(ctx context.Context, seed *Seed, now time.Time) error {
	for _, u := range seed.Users {
		id, err := parseID(u.ID)
		if err != nil {
			return fmt.Errorf("user %q: %w", u.Name, err)
		}
		role := models.UserRole(u.Role)
		if role == "" {
			role = models.UserRoleParticipant
		}
		if err := s.CreateUser(ctx, &models.User{
			ID: id, Name: u.Name, Email: u.Email, Role: role, Status: models.UserStatusActive, CreatedAt: now,
		}); err != nil {
			return err
		}
	}

	for _, c := range seed.Categories {
		id, err := parseID(c.ID)
		if err != nil {
			return fmt.Errorf("category %q: %w", c.Name, err)
		}
		if err := s.CreateCategory(ctx, &models.Category{ID: id, Name: c.Name, CreatedAt: now}); err != nil {
			return err
		}
	}

	for _, it := range seed.Items {
		id, err := parseID(it.ID)
		if err != nil {
			return fmt.Errorf("item %q: %w", it.Name, err)
		}
		categoryID, err := uuid.Parse(it.Category)
		if err != nil {
			return fmt.Errorf("item %q category: %w", it.Name, err)
		}
		initial, err := decimal.NewFromString(it.InitialValue)
		if err != nil {
			return fmt.Errorf("item %q initial_value: %w", it.Name, err)
		}
		increment, err := decimal.NewFromString(it.MinimumIncrement)
		if err != nil {
			return fmt.Errorf("item %q minimum_increment: %w", it.Name, err)
		}
		if err := s.CreateItem(ctx, &models.Item{
			ID: id, Name: it.Name, Description: it.Description, CategoryID: categoryID,
			InitialValue: initial, MinimumIncrement: increment, CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			return fmt.Errorf("item %q: %w", it.Name, err)
		}
	}

	for _, a := range seed.Auctions {
		id, err := parseID(a.ID)
		if err != nil {
			return fmt.Errorf("auction %q: %w", a.Name, err)
		}
		createdBy, err := uuid.Parse(a.CreatedBy)
		if err != nil {
			return fmt.Errorf("auction %q created_by: %w", a.Name, err)
		}
		itemIDs := make([]uuid.UUID, 0, len(a.Items))
		for _, raw := range a.Items {
			itemID, err := uuid.Parse(raw)
			if err != nil {
				return fmt.Errorf("auction %q item: %w", a.Name, err)
			}
			itemIDs = append(itemIDs, itemID)
		}
		start := now.Add(a.StartIn)
		if err := s.CreateAuction(ctx, &models.Auction{
			ID: id, Name: a.Name, Status: models.AuctionStatusScheduled, ItemIDs: itemIDs,
			StartDate: start, ExpectedEndDate: start.Add(a.Duration), CreatedBy: createdBy,
			CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			return fmt.Errorf("auction %q: %w", a.Name, err)
		}
	}
	return nil
}

func parseID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.New(), nil
	}
	return uuid.Parse(raw)
}
