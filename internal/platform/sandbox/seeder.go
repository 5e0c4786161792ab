// Package sandbox fills a development database with demo nurses,
// pharmacies and posted visits.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	randomdata "github.com/Pallinder/go-randomdata"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/nursebridge/nursebridge/internal/domain/account"
	"github.com/nursebridge/nursebridge/internal/domain/nurse"
	"github.com/nursebridge/nursebridge/internal/domain/visit"
	"github.com/nursebridge/nursebridge/internal/platform/apperr"
	"github.com/nursebridge/nursebridge/internal/platform/auth"
)

// DefaultPassword signs in every seeded account.
const DefaultPassword = "nursebridge-demo"

const emailDomain = "demo.nursebridge.test"

// SeedConfig controls how much demo data is created.
type SeedConfig struct {
	Nurses            int    `json:"nurses"`
	Pharmacies        int    `json:"pharmacies"`
	VisitsPerPharmacy int    `json:"visits_per_pharmacy"`
	Password          string `json:"password"`
	Seed              int64  `json:"seed"`
}

// DefaultSeedConfig returns a small demo marketplace.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{Nurses: 12, Pharmacies: 3, VisitsPerPharmacy: 5, Password: DefaultPassword}
}

func (c SeedConfig) withDefaults() SeedConfig {
	d := DefaultSeedConfig()
	if c.Nurses <= 0 {
		c.Nurses = d.Nurses
	}
	if c.Pharmacies <= 0 {
		c.Pharmacies = d.Pharmacies
	}
	if c.VisitsPerPharmacy <= 0 {
		c.VisitsPerPharmacy = d.VisitsPerPharmacy
	}
	if c.Password == "" {
		c.Password = d.Password
	}
	return c
}

// SeedResult counts what a run created. Accounts whose email is already
// registered are counted as skipped.
type SeedResult struct {
	Nurses     int           `json:"nurses"`
	Pharmacies int           `json:"pharmacies"`
	Visits     int           `json:"visits"`
	Skipped    int           `json:"skipped"`
	Emails     []string      `json:"emails"`
	Password   string        `json:"password"`
	Duration   time.Duration `json:"duration"`
}

// AccountCreator is satisfied by *account.Service.
type AccountCreator interface {
	SignUp(ctx context.Context, caller auth.Identity, req account.SignUpRequest) (*account.Session, error)
}

// ProfileStore stores nurse profiles directly, skipping the onboarding
// wizard. nurse.NurseRepository satisfies it.
type ProfileStore interface {
	Create(ctx context.Context, n *nurse.NurseProfile) error
}

// VisitCreator is satisfied by *visit.Service.
type VisitCreator interface {
	Create(ctx context.Context, caller auth.Identity, v *visit.Visit) error
}

// metro is a service area demo accounts are spread around.
type metro struct {
	City  string
	State string
	Zip   string
	Lat   float64
	Lng   float64
}

var metros = []metro{
	{"Phoenix", "AZ", "85004", 33.4484, -112.0740},
	{"Tempe", "AZ", "85281", 33.4255, -111.9400},
	{"Dallas", "TX", "75201", 32.7767, -96.7970},
	{"Fort Worth", "TX", "76102", 32.7555, -97.3308},
	{"Atlanta", "GA", "30303", 33.7490, -84.3880},
	{"Tampa", "FL", "33602", 27.9506, -82.4572},
	{"Denver", "CO", "80202", 39.7392, -104.9903},
	{"Columbus", "OH", "43215", 39.9612, -82.9988},
}

var (
	specialties = []string{"iv_therapy", "home_infusion", "oncology", "pediatrics", "picc_care", "tpn", "immunoglobulin"}

	certifications = []string{"iv_certification", "bls", "acls", "picc", "crni", "onc"}

	infusions = []struct {
		Type       string
		Medication string
		Minutes    int
	}{
		{"antibiotic", "Vancomycin 1g", 90},
		{"antibiotic", "Ceftriaxone 2g", 60},
		{"hydration", "Normal saline 1L", 60},
		{"ivig", "Immune globulin 0.4 g/kg", 240},
		{"tpn", "Total parenteral nutrition", 120},
		{"iron", "Iron sucrose 200mg", 45},
		{"biologic", "Infliximab 5 mg/kg", 150},
		{"chemotherapy", "Fluorouracil pump disconnect", 45},
	}

	startTimes = []string{"07:30", "09:00", "10:30", "13:00", "15:30", "18:00"}

	urgencies = []string{visit.UrgencyRoutine, visit.UrgencyRoutine, visit.UrgencyRoutine, visit.UrgencyUrgent, visit.UrgencyStat}

	pharmacySuffixes = []string{"Infusion Pharmacy", "Home Infusion", "Specialty Rx", "Compounding Pharmacy"}
)

// Seeder creates demo accounts through the account service and writes their
// profiles and visits through the domain layer.
type Seeder struct {
	accounts AccountCreator
	nurses   ProfileStore
	visits   VisitCreator
	logger   zerolog.Logger
	now      func() time.Time
}

func NewSeeder(accounts AccountCreator, nurses ProfileStore, visits VisitCreator, logger zerolog.Logger) *Seeder {
	return &Seeder{
		accounts: accounts,
		nurses:   nurses,
		visits:   visits,
		logger:   logger.With().Str("component", "sandbox").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Seed creates cfg.Nurses approved and available nurses, cfg.Pharmacies
// pharmacy accounts and cfg.VisitsPerPharmacy posted visits for each
// pharmacy, all placed around the demo metros.
func (s *Seeder) Seed(ctx context.Context, cfg SeedConfig) (*SeedResult, error) {
	start := time.Now()
	cfg = cfg.withDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	g := &generator{rng: rand.New(rand.NewSource(seed))}
	result := &SeedResult{Password: cfg.Password, Emails: []string{}}

	for i := 0; i < cfg.Nurses; i++ {
		p := g.nurse(i)
		sess, err := s.signUp(ctx, p.Email, cfg.Password, auth.RoleNurse)
		if errors.Is(err, apperr.ErrConflict) {
			result.Skipped++
			continue
		}
		if err != nil {
			return result, err
		}
		p.OwnerID = sess.Account.ID
		if err := s.nurses.Create(ctx, p); err != nil {
			return result, fmt.Errorf("seed nurse %s: %w", p.Email, err)
		}
		result.Nurses++
		result.Emails = append(result.Emails, p.Email)
	}

	for i := 0; i < cfg.Pharmacies; i++ {
		name, email := g.pharmacy(i)
		sess, err := s.signUp(ctx, email, cfg.Password, auth.RolePharmacy)
		if errors.Is(err, apperr.ErrConflict) {
			result.Skipped++
			continue
		}
		if err != nil {
			return result, err
		}
		result.Pharmacies++
		result.Emails = append(result.Emails, email)

		caller := auth.Identity{UserID: sess.Account.ID, Roles: []string{auth.RolePharmacy}}
		home := g.metro()
		for j := 0; j < cfg.VisitsPerPharmacy; j++ {
			v := g.visit(name, home, s.now())
			if err := s.visits.Create(ctx, caller, v); err != nil {
				return result, fmt.Errorf("seed visit for %s: %w", name, err)
			}
			result.Visits++
		}
	}

	result.Duration = time.Since(start)
	s.logger.Info().Int("nurses", result.Nurses).Int("pharmacies", result.Pharmacies).
		Int("visits", result.Visits).Int("skipped", result.Skipped).Msg("sandbox data seeded")
	return result, nil
}

func (s *Seeder) signUp(ctx context.Context, email, password, role string) (*account.Session, error) {
	return s.accounts.SignUp(ctx, auth.Identity{}, account.SignUpRequest{Email: email, Password: password, Role: role})
}

// generator produces demo records. Layout and numbers come from rng;
// names and streets come from go-randomdata.
type generator struct {
	rng *rand.Rand
}

func (g *generator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

func (g *generator) sample(pool []string, n int) []string {
	idx := g.rng.Perm(len(pool))
	if n > len(pool) {
		n = len(pool)
	}
	out := make([]string, 0, n)
	for _, i := range idx[:n] {
		out = append(out, pool[i])
	}
	return out
}

func (g *generator) metro() metro {
	return metros[g.rng.Intn(len(metros))]
}

// near returns a point within roughly ten miles of m.
func (g *generator) near(m metro) (float64, float64) {
	lat := m.Lat + (g.rng.Float64()-0.5)*0.3
	lng := m.Lng + (g.rng.Float64()-0.5)*0.3
	return lat, lng
}

func (g *generator) street() string {
	return fmt.Sprintf("%d %s", 100+g.rng.Intn(9800), randomdata.Street())
}

func (g *generator) phone() string {
	return fmt.Sprintf("(%03d) %03d-%04d", 200+g.rng.Intn(800), 200+g.rng.Intn(800), g.rng.Intn(10000))
}

func emailLocal(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (g *generator) nurse(i int) *nurse.NurseProfile {
	first := randomdata.FirstName(randomdata.RandomGender)
	last := randomdata.LastName()
	m := g.metro()
	lat, lng := g.near(m)
	return &nurse.NurseProfile{
		FirstName:          first,
		LastName:           last,
		Email:              fmt.Sprintf("%s.%s.%d@%s", emailLocal(first), emailLocal(last), i+1, emailDomain),
		Phone:              g.phone(),
		LicenseNumber:      fmt.Sprintf("RN%07d", g.rng.Intn(10000000)),
		LicenseState:       m.State,
		Specialties:        g.sample(specialties, 1+g.rng.Intn(3)),
		Certifications:     append([]string{"iv_certification", "bls"}, g.sample(certifications[2:], g.rng.Intn(3))...),
		YearsExperience:    1 + g.rng.Intn(25),
		HourlyRate:         float64(45 + g.rng.Intn(46)),
		ServiceRadiusMiles: []int{15, 25, 40, 60}[g.rng.Intn(4)],
		Address:            g.street(),
		City:               m.City,
		State:              m.State,
		Zip:                m.Zip,
		Latitude:           &lat,
		Longitude:          &lng,
		Bio:                fmt.Sprintf("Infusion nurse based in %s, %s.", m.City, m.State),
		OnboardingStep:     len(nurse.OnboardingSteps),
		OnboardingStatus:   nurse.OnboardingApproved,
		IsAvailable:        g.rng.Intn(5) > 0,
	}
}

func (g *generator) pharmacy(i int) (name, email string) {
	name = randomdata.LastName() + " " + g.pick(pharmacySuffixes)
	return name, fmt.Sprintf("%s.%d@%s", emailLocal(name), i+1, emailDomain)
}

func (g *generator) visit(pharmacy string, m metro, now time.Time) *visit.Visit {
	inf := infusions[g.rng.Intn(len(infusions))]
	lat, lng := g.near(m)
	day := now.Truncate(24*time.Hour).AddDate(0, 0, 1+g.rng.Intn(21))
	initials := string(randomdata.FirstName(randomdata.RandomGender)[0]) + string(randomdata.LastName()[0])
	return &visit.Visit{
		PharmacyName:           pharmacy,
		PatientInitials:        initials,
		PatientAddress:         g.street(),
		PatientCity:            m.City,
		PatientState:           m.State,
		PatientZip:             m.Zip,
		Latitude:               &lat,
		Longitude:              &lng,
		ScheduledDate:          day,
		StartTime:              g.pick(startTimes),
		DurationMinutes:        inf.Minutes,
		InfusionType:           inf.Type,
		Medication:             inf.Medication,
		RequiredCertifications: []string{"iv_certification"},
		PayRate:                float64(90+g.rng.Intn(23)*10) + 0.5*float64(g.rng.Intn(2)),
		Urgency:                g.pick(urgencies),
		Notes:                  "Demo visit. Patient prefers a call on arrival.",
		Status:                 visit.StatusPosted,
	}
}

// Handler exposes seeding to administrators in development.
type Handler struct {
	seeder *Seeder
	mu     sync.Mutex
}

func NewHandler(seeder *Seeder) *Handler {
	return &Handler{seeder: seeder}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/sandbox", auth.RequireRole(auth.RoleAdmin))
	g.POST("/seed", h.Seed)
}

func (h *Handler) Seed(c echo.Context) error {
	var cfg SeedConfig
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&cfg); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	result, err := h.seeder.Seed(c.Request().Context(), cfg)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, result)
}
