package gate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/learnbill-backend/pkg/errors"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
)

const (
	LearningOrganizationType = "learning"
	LearningBillingFlag      = "learning_billing"

	defaultCacheTTL = time.Minute
)

// Repository reads agencies from the organization store.
type Repository interface {
	FindAgency(ctx context.Context, agencyID uuid.UUID) (*models.Agency, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindAgency(ctx context.Context, agencyID uuid.UUID) (*models.Agency, error) {
	var agency models.Agency
	if err := r.db.WithContext(ctx).Where("id = ?", agencyID).Take(&agency).Error; err != nil {
		return nil, err
	}
	return &agency, nil
}

type cacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	GateKey(agencyID string) string
}

type CheckerParams struct {
	Repo   Repository
	Cache  cacheStore
	TTL    time.Duration
	Logger *logger.Logger
}

// Checker answers whether learning billing is reachable for an agency.
type Checker struct {
	repo  Repository
	cache cacheStore
	ttl   time.Duration
	logg  *logger.Logger
}

func NewChecker(params CheckerParams) (*Checker, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Checker{
		repo:  params.Repo,
		cache: params.Cache,
		ttl:   ttl,
		logg:  params.Logger,
	}, nil
}

// LearningBillingEnabled reports whether the agency is a learning
// organization with the learning_billing flag set. Results are cached briefly;
// cache failures fall through to the database.
func (c *Checker) LearningBillingEnabled(ctx context.Context, agencyID uuid.UUID) (bool, error) {
	if agencyID == uuid.Nil {
		return false, nil
	}

	key := ""
	if c.cache != nil {
		key = c.cache.GateKey(agencyID.String())
		cached, err := c.cache.Get(ctx, key)
		switch {
		case err == nil:
			return cached == "1", nil
		case !errors.Is(err, goredis.Nil):
			c.warn(ctx, agencyID, err, "gate cache read failed")
		}
	}

	agency, err := c.repo.FindAgency(ctx, agencyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.store(ctx, key, agencyID, false)
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load agency")
	}

	enabled := IsLearningBillingAgency(*agency)
	c.store(ctx, key, agencyID, enabled)
	return enabled, nil
}

// Require returns a FEATURE_DISABLED error unless learning billing is enabled.
func (c *Checker) Require(ctx context.Context, agencyID uuid.UUID) error {
	enabled, err := c.LearningBillingEnabled(ctx, agencyID)
	if err != nil {
		return err
	}
	if !enabled {
		return pkgerrors.New(pkgerrors.CodeFeatureDisabled, "learning billing is disabled for agency")
	}
	return nil
}

func (c *Checker) store(ctx context.Context, key string, agencyID uuid.UUID, enabled bool) {
	if c.cache == nil || key == "" {
		return
	}
	val := "0"
	if enabled {
		val = "1"
	}
	if err := c.cache.Set(ctx, key, val, c.ttl); err != nil {
		c.warn(ctx, agencyID, err, "gate cache write failed")
	}
}

func (c *Checker) warn(ctx context.Context, agencyID uuid.UUID, err error, msg string) {
	if c.logg == nil {
		return
	}
	ctx = c.logg.WithFields(ctx, map[string]any{
		"agency_id": agencyID.String(),
		"error":     err.Error(),
	})
	c.logg.Warn(ctx, msg)
}

// IsLearningBillingAgency applies the gate rule to an agency row. Flags may be
// stored as a JSON array of names or an object of booleans.
func IsLearningBillingAgency(agency models.Agency) bool {
	if !strings.EqualFold(strings.TrimSpace(agency.OrganizationType), LearningOrganizationType) {
		return false
	}
	return hasFlag(agency.FeatureFlags, LearningBillingFlag)
}

func hasFlag(raw json.RawMessage, flag string) bool {
	if len(raw) == 0 {
		return false
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, f := range list {
			if f == flag {
				return true
			}
		}
		return false
	}
	var set map[string]bool
	if err := json.Unmarshal(raw, &set); err == nil {
		return set[flag]
	}
	return false
}
