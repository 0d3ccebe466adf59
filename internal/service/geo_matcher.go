package service

import (
	"context"
	"errors"
	"sort"

	"bloodlink-backend/internal/domain"
	"bloodlink-backend/internal/logger"
	"bloodlink-backend/internal/metrics"
	"bloodlink-backend/internal/repository"
)

type GeoOptions struct {
	DefaultRadiusKm float64
	MaxResults      int
	FallbackLimit   int
	// Native enables the store's own distance query. Stores that cannot
	// answer it fall back to in-process haversine.
	Native bool
}

func (o GeoOptions) withDefaults() GeoOptions {
	if o.DefaultRadiusKm <= 0 {
		o.DefaultRadiusKm = 50
	}
	if o.MaxResults <= 0 {
		o.MaxResults = 50
	}
	if o.FallbackLimit <= 0 {
		o.FallbackLimit = 20
	}
	return o
}

type geoMatcher struct {
	donorRepo repository.DonorRepository
	opts      GeoOptions
}

func NewGeoMatcher(donorRepo repository.DonorRepository, opts GeoOptions) GeoMatcher {
	return &geoMatcher{donorRepo: donorRepo, opts: opts.withDefaults()}
}

func (m *geoMatcher) radius(radiusKm float64) float64 {
	if radiusKm <= 0 {
		return m.opts.DefaultRadiusKm
	}
	return radiusKm
}

// FindNearby returns available donors matching filter within radiusKm of
// origin, nearest first. An unknown origin yields domain.ErrLocationUnknown.
func (m *geoMatcher) FindNearby(ctx context.Context, origin domain.Coordinate, radiusKm float64, filter domain.DonorFilter) ([]domain.DonorMatch, error) {
	logger.EnterMethod("geoMatcher.FindNearby", "lat", origin.Lat, "lon", origin.Lon, "radiusKm", radiusKm, "bloodGroup", filter.BloodGroup)

	if origin.IsUnknown() {
		logger.ExitMethodWithWarning("geoMatcher.FindNearby", domain.ErrLocationUnknown)
		return nil, domain.ErrLocationUnknown
	}
	radiusKm = m.radius(radiusKm)
	filter.OnlyAvailable = true

	if m.opts.Native {
		matches, err := m.donorRepo.FindNearby(ctx, origin, radiusKm, filter, int32(m.opts.MaxResults))
		switch {
		case err == nil:
			metrics.GeoQueries.WithLabelValues("native").Inc()
			// The store may return a slightly wider ring. Haversine makes
			// the final distance and radius decision for both paths.
			out := make([]domain.DonorMatch, 0, len(matches))
			for _, match := range matches {
				match.DistanceKm = origin.DistanceKm(match.Donor.Location)
				if match.DistanceKm <= radiusKm && filter.Matches(&match.Donor) {
					out = append(out, match)
				}
			}
			out = m.rank(out)
			logger.ExitMethod("geoMatcher.FindNearby", "path", "native", "count", len(out))
			return out, nil
		case errors.Is(err, repository.ErrNativeGeoUnsupported):
		default:
			metrics.GeoQueries.WithLabelValues("error").Inc()
			logger.ExitMethodWithError("geoMatcher.FindNearby", err)
			return nil, domain.Dependency("geo query", err)
		}
	}

	donors, err := m.donorRepo.ListCandidates(ctx, filter, 0)
	if err != nil {
		metrics.GeoQueries.WithLabelValues("error").Inc()
		logger.ExitMethodWithError("geoMatcher.FindNearby", err)
		return nil, domain.Dependency("donor candidates", err)
	}
	metrics.GeoQueries.WithLabelValues("haversine").Inc()

	out := []domain.DonorMatch{}
	for _, d := range donors {
		if d.Location.IsUnknown() || !filter.Matches(&d) {
			continue
		}
		dist := origin.DistanceKm(d.Location)
		if dist > radiusKm {
			continue
		}
		out = append(out, domain.DonorMatch{Donor: d, DistanceKm: dist})
	}
	out = m.rank(out)
	logger.ExitMethod("geoMatcher.FindNearby", "path", "haversine", "count", len(out))
	return out, nil
}

func (m *geoMatcher) rank(matches []domain.DonorMatch) []domain.DonorMatch {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].DistanceKm != matches[j].DistanceKm {
			return matches[i].DistanceKm < matches[j].DistanceKm
		}
		return matches[i].Donor.UserID < matches[j].Donor.UserID
	})
	if len(matches) > m.opts.MaxResults {
		matches = matches[:m.opts.MaxResults]
	}
	return matches
}

// FindByBloodGroup is the fallback when no origin is known. Results are
// unordered and capped at the fallback limit.
func (m *geoMatcher) FindByBloodGroup(ctx context.Context, filter domain.DonorFilter) ([]domain.DonorMatch, error) {
	filter.OnlyAvailable = true
	donors, err := m.donorRepo.ListCandidates(ctx, filter, int32(m.opts.FallbackLimit))
	if err != nil {
		return nil, domain.Dependency("donor candidates", err)
	}
	metrics.GeoQueries.WithLabelValues("fallback").Inc()

	out := make([]domain.DonorMatch, 0, len(donors))
	for _, d := range donors {
		if !filter.Matches(&d) {
			continue
		}
		out = append(out, domain.DonorMatch{Donor: d, LocationUnknown: true})
		if len(out) == m.opts.FallbackLimit {
			break
		}
	}
	return out, nil
}

// MatchForRequest finds donors for req, excluding its creator.
func (m *geoMatcher) MatchForRequest(ctx context.Context, req *domain.BloodRequest) ([]domain.DonorMatch, error) {
	filter := domain.DonorFilter{
		BloodGroup:     req.BloodGroup,
		OnlyAvailable:  true,
		ExcludeUserIDs: []int32{req.RecipientID},
	}

	matches, err := m.FindNearby(ctx, req.Location, m.opts.DefaultRadiusKm, filter)
	if errors.Is(err, domain.ErrLocationUnknown) {
		logger.Info("Request has no location, matching by blood group only", "requestID", req.ID, "bloodGroup", req.BloodGroup)
		return m.FindByBloodGroup(ctx, filter)
	}
	return matches, err
}

// RankRequests orders reqs by distance from origin and drops those outside
// radiusKm or without a location. An unknown origin keeps store order and
// the fallback cap.
func (m *geoMatcher) RankRequests(origin domain.Coordinate, radiusKm float64, reqs []domain.BloodRequest) []domain.RequestMatch {
	out := []domain.RequestMatch{}
	if origin.IsUnknown() {
		for _, r := range reqs {
			out = append(out, domain.RequestMatch{Request: r, LocationUnknown: true})
			if len(out) == m.opts.FallbackLimit {
				break
			}
		}
		return out
	}

	radiusKm = m.radius(radiusKm)
	for _, r := range reqs {
		if r.Location.IsUnknown() {
			continue
		}
		dist := origin.DistanceKm(r.Location)
		if dist <= radiusKm {
			out = append(out, domain.RequestMatch{Request: r, DistanceKm: dist})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].Request.ID < out[j].Request.ID
	})
	if len(out) > m.opts.MaxResults {
		out = out[:m.opts.MaxResults]
	}
	return out
}
