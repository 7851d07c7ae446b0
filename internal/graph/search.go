package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/assistant"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/engine"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/models"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/query"
)

const (
	// notUsefulRatio dampens hits the assistant rejected.
	notUsefulRatio = 0.5
	minOverFetch   = 20
)

// Search runs a zone-scoped search. A zone that does not exist yields an
// empty result.
func (c *Client) Search(ctx context.Context, req query.SearchRequest) (*models.SearchResult, error) {
	req.Zone = zoneOrDefault(req.Zone)
	res := &models.SearchResult{Zone: req.Zone, Hits: []models.SearchHit{}}

	ok, err := c.zones.ZoneExists(ctx, req.Zone)
	if err != nil {
		return nil, err
	}
	if !ok {
		return res, nil
	}

	resp, err := c.eng.Search(ctx, c.layout.EntityIndex(req.Zone), query.Build(req))
	if engine.IsMissing(err) {
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("search zone %q: %w", req.Zone, err)
	}
	res.Total = resp.Total
	for _, h := range resp.Hits {
		hit, err := toSearchHit(h)
		if err != nil {
			c.logger.Warn("skipping malformed hit", "id", h.ID, "err", err)
			continue
		}
		res.Hits = append(res.Hits, hit)
	}
	return res, nil
}

func toSearchHit(h engine.Hit) (models.SearchHit, error) {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(h.Source, &tag); err != nil {
		return models.SearchHit{}, err
	}
	hit := models.SearchHit{ID: h.ID, Type: tag.Type, Score: h.Score, Highlights: h.Highlight}
	switch tag.Type {
	case models.TypeRelation:
		r, err := decodeRelation(h.Source)
		if err != nil {
			return hit, err
		}
		hit.Relation = r
	default:
		e, err := decodeEntity(h.Source)
		if err != nil {
			return hit, err
		}
		hit.Type = models.TypeEntity
		hit.Entity = e
	}
	return hit, nil
}

// SearchEntities returns only the entity hits of a search.
func (c *Client) SearchEntities(ctx context.Context, req query.SearchRequest) ([]models.Entity, error) {
	res, err := c.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	entities := []models.Entity{}
	for _, h := range res.Hits {
		if h.Entity != nil {
			entities = append(entities, *h.Entity)
		}
	}
	return entities, nil
}

// UserSearchRequest is a search on behalf of a user, optionally describing
// what the user is trying to find out.
type UserSearchRequest struct {
	query.SearchRequest
	InformationNeeded string
	Reason            string
}

// UserSearch searches and, when an information need is given and an
// assistant is configured, keeps only the hits the assistant finds useful.
// Assistant failures fall back to the plain result and are never returned.
func (c *Client) UserSearch(ctx context.Context, req UserSearchRequest) (*models.UserSearchResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = query.DefaultLimit
	}
	fetch := req.SearchRequest
	fetch.Limit = limit
	if req.InformationNeeded != "" {
		fetch.Limit = max(limit*3, minOverFetch)
	}

	res, err := c.Search(ctx, fetch)
	if err != nil {
		return nil, err
	}
	out := &models.UserSearchResult{SearchResult: *res}
	fallback := func(reason string) *models.UserSearchResult {
		out.Fallback = reason
		if len(out.Hits) > limit {
			out.Hits = out.Hits[:limit]
		}
		return out
	}

	if req.InformationNeeded == "" {
		return fallback(""), nil
	}
	if c.assistant == nil {
		return fallback(assistant.ErrUnavailable.Error()), nil
	}
	if len(res.Hits) == 0 {
		return fallback(""), nil
	}

	candidates := make([]assistant.Candidate, 0, len(res.Hits))
	for _, h := range res.Hits {
		if h.Entity == nil {
			continue
		}
		candidates = append(candidates, assistant.Candidate{
			ID:           h.ID,
			Name:         h.Entity.Name,
			EntityType:   h.Entity.EntityType,
			Observations: h.Entity.Observations,
		})
	}
	verdicts, err := c.assistant.Score(ctx, assistant.Request{
		Query:             req.Query,
		InformationNeeded: req.InformationNeeded,
		Reason:            req.Reason,
		Candidates:        candidates,
	})
	if err != nil {
		c.logger.Warn("relevance assistant failed, returning unfiltered results", "err", err)
		return fallback(err.Error()), nil
	}

	byID := make(map[string]assistant.Verdict, len(verdicts))
	for _, v := range verdicts {
		byID[v.ID] = v
	}
	type scored struct {
		hit   models.SearchHit
		score float64
	}
	var useful []scored
	for _, h := range res.Hits {
		v, ok := byID[h.ID]
		if !ok || h.Entity == nil {
			continue
		}
		ratio := notUsefulRatio
		if v.Useful {
			ratio = 1 + v.Score
		}
		h.Entity.RelevanceScore = clampRelevance(h.Entity.RelevanceScore * ratio)
		if _, err := c.UpdateEntityRelevanceScore(ctx, h.Entity.Name, ratio, res.Zone, RelevanceOptions{}); err != nil {
			c.logger.Warn("failed to persist relevance adjustment", "entity", h.Entity.Name, "err", err)
		}
		if v.Useful {
			useful = append(useful, scored{hit: h, score: v.Score})
		}
	}
	sort.SliceStable(useful, func(i, j int) bool { return useful[i].score > useful[j].score })

	out.Hits = make([]models.SearchHit, 0, min(len(useful), limit))
	for _, u := range useful {
		if len(out.Hits) == limit {
			break
		}
		out.Hits = append(out.Hits, u.hit)
	}
	out.Total = len(useful)
	out.Filtered = true
	return out, nil
}
