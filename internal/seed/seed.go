// Package seed loads demo accounts and reports from a YAML fixture file.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/sitdb/sitdb/internal/reports"
	"github.com/sitdb/sitdb/internal/shared"
)

//go:embed fixtures.yaml
var defaultFixtures []byte

// Fixtures is the seed file layout.
type Fixtures struct {
	Users   []UserFixture   `yaml:"users"`
	Reports []ReportFixture `yaml:"reports"`
}

// UserFixture describes one account. Status defaults to ACTIVE.
type UserFixture struct {
	Email    string            `yaml:"email"`
	Password string            `yaml:"password"`
	Name     string            `yaml:"name"`
	Phone    string            `yaml:"phone"`
	Role     shared.Role       `yaml:"role"`
	Status   shared.UserStatus `yaml:"status"`
}

// ReportFixture describes one report owned by the user with email Owner.
// A non-PENDING Status is applied after creation by the first admin or
// volunteer fixture.
type ReportFixture struct {
	Owner       string           `yaml:"owner"`
	Title       string           `yaml:"title"`
	Description string           `yaml:"description"`
	Type        reports.Type     `yaml:"type"`
	Severity    reports.Severity `yaml:"severity"`
	Latitude    float64          `yaml:"latitude"`
	Longitude   float64          `yaml:"longitude"`
	Address     string           `yaml:"address"`
	Status      reports.Status   `yaml:"status"`
	Notes       string           `yaml:"notes"`
}

// Parse decodes a fixture file, rejecting unknown keys.
func Parse(data []byte) (*Fixtures, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var fx Fixtures
	if err := dec.Decode(&fx); err != nil {
		return nil, fmt.Errorf("seed: decode fixtures: %w", err)
	}
	if err := fx.validate(); err != nil {
		return nil, err
	}
	return &fx, nil
}

// Default returns the fixtures bundled with the binary.
func Default() (*Fixtures, error) {
	return Parse(defaultFixtures)
}

func (fx *Fixtures) validate() error {
	emails := make(map[string]struct{}, len(fx.Users))
	for i := range fx.Users {
		u := &fx.Users[i]
		u.Email = strings.ToLower(strings.TrimSpace(u.Email))
		if u.Email == "" || u.Password == "" || u.Name == "" {
			return fmt.Errorf("seed: user %d: email, password and name are required", i+1)
		}
		if !u.Role.Valid() {
			return fmt.Errorf("seed: user %s: unknown role %q", u.Email, u.Role)
		}
		if u.Status == "" {
			u.Status = shared.UserActive
		}
		if !u.Status.Valid() {
			return fmt.Errorf("seed: user %s: unknown status %q", u.Email, u.Status)
		}
		emails[u.Email] = struct{}{}
	}
	for i := range fx.Reports {
		r := &fx.Reports[i]
		r.Owner = strings.ToLower(strings.TrimSpace(r.Owner))
		if _, ok := emails[r.Owner]; !ok {
			return fmt.Errorf("seed: report %q: owner %q is not a fixture user", r.Title, r.Owner)
		}
		if !slices.Contains(reports.Types, r.Type) {
			return fmt.Errorf("seed: report %q: unknown type %q", r.Title, r.Type)
		}
		if !slices.Contains(reports.Severities, r.Severity) {
			return fmt.Errorf("seed: report %q: unknown severity %q", r.Title, r.Severity)
		}
		if r.Status != "" && !slices.Contains(reports.Statuses, r.Status) {
			return fmt.Errorf("seed: report %q: unknown status %q", r.Title, r.Status)
		}
	}
	return nil
}

// Store persists fixture accounts.
type Store interface {
	// EnsureUser inserts the account unless the email exists and returns the
	// stored principal either way.
	EnsureUser(ctx context.Context, u UserFixture, passwordHash string) (shared.Principal, bool, error)
	ReportExists(ctx context.Context, ownerID, title string) (bool, error)
}

// ReportWriter is the part of the reports service the seeder drives.
type ReportWriter interface {
	Create(ctx context.Context, actor shared.Principal, in reports.CreateInput, meta shared.RequestMeta) (*reports.Report, error)
	UpdateStatus(ctx context.Context, actor shared.Principal, id string, in reports.StatusInput, meta shared.RequestMeta) (*reports.StatusResult, error)
}

// Result counts what a run changed.
type Result struct {
	UsersCreated   int
	UsersExisting  int
	ReportsCreated int
	ReportsSkipped int
}

// Seeder applies fixtures through the regular services so reports get their
// history, audit, change events and outbox rows.
type Seeder struct {
	store   Store
	reports ReportWriter
	cost    int
}

// NewSeeder constructs a Seeder.
func NewSeeder(store Store, reports ReportWriter) *Seeder {
	return &Seeder{store: store, reports: reports, cost: bcrypt.DefaultCost}
}

// Run seeds users then reports. Reports whose owner already has one with the
// same title are skipped, so running twice is harmless.
func (s *Seeder) Run(ctx context.Context, fx *Fixtures) (Result, error) {
	var res Result
	meta := shared.RequestMeta{UserAgent: "sitdbctl seed"}

	byEmail := make(map[string]shared.Principal, len(fx.Users))
	for _, u := range fx.Users {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), s.cost)
		if err != nil {
			return res, fmt.Errorf("seed: hash password for %s: %w", u.Email, err)
		}
		p, created, err := s.store.EnsureUser(ctx, u, string(hash))
		if err != nil {
			return res, fmt.Errorf("seed: user %s: %w", u.Email, err)
		}
		if created {
			res.UsersCreated++
		} else {
			res.UsersExisting++
		}
		byEmail[u.Email] = p
	}
	reviewer := pickReviewer(fx.Users, byEmail)

	for _, r := range fx.Reports {
		owner := byEmail[r.Owner]
		exists, err := s.store.ReportExists(ctx, owner.ID, r.Title)
		if err != nil {
			return res, fmt.Errorf("seed: report %q: %w", r.Title, err)
		}
		if exists {
			res.ReportsSkipped++
			continue
		}
		lat, lng := r.Latitude, r.Longitude
		in := reports.CreateInput{
			Type:        r.Type,
			Title:       r.Title,
			Description: r.Description,
			Latitude:    &lat,
			Longitude:   &lng,
			Severity:    r.Severity,
		}
		if r.Address != "" {
			addr := r.Address
			in.Address = &addr
		}
		created, err := s.reports.Create(ctx, owner, in, meta)
		if err != nil {
			return res, fmt.Errorf("seed: report %q: %w", r.Title, err)
		}
		res.ReportsCreated++

		if r.Status == "" || r.Status == reports.StatusPending {
			continue
		}
		if reviewer == nil {
			return res, errors.New("seed: status fixtures need an ADMIN or RELAWAN user")
		}
		status := reports.StatusInput{Status: r.Status}
		if r.Notes != "" {
			notes := r.Notes
			status.Notes = &notes
		}
		if _, err := s.reports.UpdateStatus(ctx, *reviewer, created.ID, status, meta); err != nil {
			return res, fmt.Errorf("seed: report %q status: %w", r.Title, err)
		}
	}
	return res, nil
}

// pickReviewer prefers the first admin, then the first volunteer.
func pickReviewer(users []UserFixture, byEmail map[string]shared.Principal) *shared.Principal {
	var volunteer *shared.Principal
	for _, u := range users {
		p := byEmail[u.Email]
		switch p.Role {
		case shared.RoleAdmin:
			return &p
		case shared.RoleRelawan:
			if volunteer == nil {
				volunteer = &p
			}
		}
	}
	return volunteer
}
