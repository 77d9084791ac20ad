package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/alerto360/internal/models"
	"github.com/shenikar/alerto360/internal/service"
)

const incidentTableName = "incidents"

// поколение должно жить дольше любой записи кэша
const cacheGenerationTTL = 24 * time.Hour

var incidentColumns = []string{
	"id",
	"user_id",
	"type",
	"description",
	"latitude",
	"longitude",
	"image_path",
	"responder_type",
	"responder_overridden",
	"status",
	"accepted_by",
	"accepted_at",
	"completed_at",
	"created_at",
}

type IncidentRepository struct {
	db          *sql.DB
	redisClient *redis.Client
	cacheTTL    time.Duration
}

func NewIncidentRepository(db *sql.DB, redisClient *redis.Client, cacheTTL time.Duration) service.IncidentRepository {
	return &IncidentRepository{
		db:          db,
		redisClient: redisClient,
		cacheTTL:    cacheTTL,
	}
}

// Create создает новую запись о происшествии в бд
func (r *IncidentRepository) Create(ctx context.Context, incident *models.Incident) error {
	query, args, err := psql().
		Insert(incidentTableName).
		Columns("user_id", "type", "description", "latitude", "longitude", "image_path", "responder_type", "responder_overridden", "status").
		Values(
			incident.UserID,
			incident.Type,
			incident.Description,
			incident.Latitude,
			incident.Longitude,
			incident.ImagePath,
			incident.ResponderType,
			incident.Overridden,
			incident.Status,
		).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate create incident query: %w", err)
	}

	err = conn(ctx, r.db).QueryRowContext(ctx, query, args...).Scan(&incident.ID, &incident.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create incident: %w", err)
	}
	return nil
}

// GetByID возвращает происшествие по id
func (r *IncidentRepository) GetByID(ctx context.Context, id int64) (*models.Incident, error) {
	query, args, err := psql().
		Select(incidentColumns...).
		From(incidentTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate incident query: %w", err)
	}

	var incident models.Incident
	if err := sqlscan.Get(ctx, conn(ctx, r.db), &incident, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, fmt.Errorf("incident with id %d: %w", id, models.ErrIncidentNotFound)
		}
		return nil, fmt.Errorf("failed to get incident by id: %w", err)
	}
	return &incident, nil
}

// Accept переводит pending -> accepted одним условным UPDATE.
// applied=false, если строка не подошла под условие (нет такой или уже не pending).
func (r *IncidentRepository) Accept(ctx context.Context, id, responderID int64) (*models.Incident, bool, error) {
	query := `
		UPDATE incidents SET
			status = 'accepted',
			accepted_by = $1,
			accepted_at = NOW()
		WHERE id = $2 AND status = 'pending'
		RETURNING ` + strings.Join(incidentColumns, ", ")

	var incident models.Incident
	if err := sqlscan.Get(ctx, conn(ctx, r.db), &incident, query, responderID, id); err != nil {
		if sqlscan.NotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to accept incident: %w", err)
	}
	return &incident, true, nil
}

// Close переводит accepted -> completed|resolved, только если происшествие принято этим респондентом
func (r *IncidentRepository) Close(ctx context.Context, id, responderID int64, to models.IncidentStatus) (*models.Incident, bool, error) {
	if to != models.StatusCompleted && to != models.StatusResolved {
		return nil, false, fmt.Errorf("%w: cannot close incident as %q", models.ErrInvalidTransition, to)
	}

	query := `
		UPDATE incidents SET
			status = $1,
			completed_at = NOW()
		WHERE id = $2 AND status = 'accepted' AND accepted_by = $3
		RETURNING ` + strings.Join(incidentColumns, ", ")

	var incident models.Incident
	if err := sqlscan.Get(ctx, conn(ctx, r.db), &incident, query, to, id, responderID); err != nil {
		if sqlscan.NotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to close incident: %w", err)
	}
	return &incident, true, nil
}

// List возвращает список происшествий по фильтру, новые первыми
func (r *IncidentRepository) List(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, error) {
	builder := applyIncidentFilter(psql().Select(incidentColumns...).From(incidentTableName), filter).
		OrderBy("created_at DESC", "id DESC")

	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		builder = builder.Limit(uint64(filter.PageSize)).Offset(uint64((page - 1) * filter.PageSize))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate list incidents query: %w", err)
	}

	incidents := make([]*models.Incident, 0)
	if err := sqlscan.Select(ctx, conn(ctx, r.db), &incidents, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	return incidents, nil
}

// CountByStatus возвращает количество происшествий по статусам
func (r *IncidentRepository) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	query, args, err := psql().
		Select("status", "COUNT(*) AS count").
		From(incidentTableName).
		GroupBy("status").
		OrderBy("status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate status count query: %w", err)
	}

	counts := make([]models.StatusCount, 0)
	if err := sqlscan.Select(ctx, conn(ctx, r.db), &counts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to count incidents by status: %w", err)
	}
	return counts, nil
}

func applyIncidentFilter(b sq.SelectBuilder, filter models.IncidentFilter) sq.SelectBuilder {
	if filter.ReporterID != nil {
		b = b.Where(sq.Eq{"user_id": *filter.ReporterID})
	}
	if q := filter.Queue; q != nil {
		// своя служба, принятые этим респондентом и типы, о которых служба оповещается по умолчанию
		queue := sq.Or{
			sq.Eq{"responder_type": q.ResponderType},
			sq.Eq{"accepted_by": q.AcceptedBy},
		}
		if len(q.SharedTypes) > 0 {
			queue = append(queue, sq.And{
				sq.Eq{"responder_overridden": false},
				sq.Eq{"type": q.SharedTypes},
			})
		}
		b = b.Where(queue)
	}
	if filter.Status != nil {
		b = b.Where(sq.Eq{"status": *filter.Status})
	}
	return b
}

func incidentCacheKey(id int64) string {
	return fmt.Sprintf("incident:%d", id)
}

func incidentGenerationKey(id int64) string {
	return fmt.Sprintf("incident:%d:gen", id)
}

// GetIncidentFromCache читает запись и поколение одним MGET. Запись nil при промахе,
// поколение 0, пока происшествие ни разу не менялось.
func (r *IncidentRepository) GetIncidentFromCache(ctx context.Context, id int64) (*models.Incident, int64, error) {
	vals, err := r.redisClient.MGet(ctx, incidentCacheKey(id), incidentGenerationKey(id)).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get incident from cache: %w", err)
	}

	version, err := parseGeneration(vals[1])
	if err != nil {
		return nil, 0, err
	}

	raw, ok := vals[0].(string)
	if !ok {
		return nil, version, nil
	}

	incident := &models.Incident{}
	if err := json.Unmarshal([]byte(raw), incident); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal incident from cache: %w", err)
	}
	return incident, version, nil
}

// SetIncidentCache сохраняет происшествие под WATCH ключа поколения.
// false, если после чтения кто-то успел инвалидировать запись.
func (r *IncidentRepository) SetIncidentCache(ctx context.Context, incident *models.Incident, version int64) (bool, error) {
	val, err := json.Marshal(incident)
	if err != nil {
		return false, fmt.Errorf("failed to marshal incident for cache: %w", err)
	}

	genKey := incidentGenerationKey(incident.ID)
	stored := false
	err = r.redisClient.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, incidentCacheKey(incident.ID), val, r.cacheTTL)
			return nil
		})
		if err != nil {
			return err
		}
		stored = true
		return nil
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to set incident in cache: %w", err)
	}
	return stored, nil
}

// InvalidateIncidentCache удаляет запись и сдвигает поколение в одной транзакции Redis
func (r *IncidentRepository) InvalidateIncidentCache(ctx context.Context, id int64) error {
	genKey := incidentGenerationKey(id)
	_, err := r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, cacheGenerationTTL)
		pipe.Del(ctx, incidentCacheKey(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate incident cache: %w", err)
	}
	return nil
}

func parseGeneration(v any) (int64, error) {
	raw, ok := v.(string)
	if !ok {
		return 0, nil
	}
	gen, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse cache generation %q: %w", raw, err)
	}
	return gen, nil
}
