// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package scoring

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/scentmatch/internal/cache"
	"github.com/tomtom215/scentmatch/internal/recommend"
)

// KNNConfig contains configuration for the user-kNN collaborative signal.
type KNNConfig struct {
	// K is the number of neighbours to consider.
	// Typical range: 20-100.
	K int `json:"k" koanf:"k"`

	// MinSimilarity is the minimum similarity threshold.
	// Neighbours with lower similarity are ignored.
	MinSimilarity float64 `json:"min_similarity" koanf:"min_similarity"`

	// Shrinkage adds a penalty for pairs with few co-liked items.
	// Regularizes similarity: sim = raw_sim * n / (n + shrinkage)
	Shrinkage float64 `json:"shrinkage" koanf:"shrinkage"`

	// MinCommonItems is the minimum number of co-liked items required
	// for a valid similarity.
	MinCommonItems int `json:"min_common_items" koanf:"min_common_items"`

	// NeighborCacheSize bounds the per-user neighbour cache.
	NeighborCacheSize int `json:"neighbor_cache_size" koanf:"neighbor_cache_size"`

	// NeighborTTL is how long a computed neighbourhood is reused.
	NeighborTTL time.Duration `json:"neighbor_ttl" koanf:"neighbor_ttl"`
}

// DefaultKNNConfig returns default kNN configuration. Fragrance
// collections are small, so shrinkage and overlap are lower than for
// dense media logs.
func DefaultKNNConfig() KNNConfig {
	return KNNConfig{
		K:                 50,
		MinSimilarity:     0.05,
		Shrinkage:         5,
		MinCommonItems:    1,
		NeighborCacheSize: 10000,
		NeighborTTL:       10 * time.Minute,
	}
}

// neighbor is a similar user with their similarity score.
type neighbor struct {
	ID         string
	Similarity float64
}

// UserKNN implements user-based collaborative filtering over positive
// interactions. For a target user u and candidate item i:
//
//	score(u, i) = sum_{v in N(u)} sim(u, v) * w(v, i) / sum_{v in N(u)} sim(u, v)
//
// where N(u) is the set of K most similar users and w(v, i) the strongest
// positive signal weight of v on i (0 if none). The denominator runs over
// the whole neighbourhood, so an item liked by one weak neighbour scores
// low; scores stay in [0, 1].
//
// It is safe for concurrent use.
type UserKNN struct {
	cfg KNNConfig

	mu sync.RWMutex
	// userVectors stores positive interactions (userID -> itemID -> weight).
	userVectors map[string]map[string]float64
	// itemUsers stores which users liked each item.
	itemUsers map[string]map[string]struct{}

	neighbors *cache.LRU[[]neighbor]
}

// NewUserKNN creates an empty user-kNN signal.
func NewUserKNN(cfg KNNConfig) *UserKNN {
	def := DefaultKNNConfig()
	if cfg.K <= 0 {
		cfg.K = def.K
	}
	if cfg.MinSimilarity <= 0 {
		cfg.MinSimilarity = def.MinSimilarity
	}
	if cfg.MinCommonItems < 1 {
		cfg.MinCommonItems = def.MinCommonItems
	}
	if cfg.NeighborCacheSize < 1 {
		cfg.NeighborCacheSize = def.NeighborCacheSize
	}
	if cfg.NeighborTTL <= 0 {
		cfg.NeighborTTL = def.NeighborTTL
	}
	return &UserKNN{
		cfg:         cfg,
		userVectors: make(map[string]map[string]float64),
		itemUsers:   make(map[string]map[string]struct{}),
		neighbors:   cache.NewLRU[[]neighbor](cfg.NeighborCacheSize, cfg.NeighborTTL),
	}
}

// ObserveInteraction implements recommend.FeedbackObserver. Positive
// events add or strengthen a like; dislikes and low ratings remove it.
func (u *UserKNN) ObserveInteraction(event recommend.InteractionEvent) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.applyLocked(&event) {
		u.neighbors.Remove(event.UserID)
	}
}

// Load replays history for the given users, replacing anything known
// about them. It is used to warm the signal at startup.
func (u *UserKNN) Load(ctx context.Context, history recommend.InteractionStore, users []string) error {
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		events, err := history.History(ctx, userID, time.Time{})
		if err != nil {
			return err
		}
		u.mu.Lock()
		u.forgetLocked(userID)
		for i := range events {
			u.applyLocked(&events[i])
		}
		u.mu.Unlock()
	}
	u.neighbors.Clear()
	return nil
}

// Users returns the number of users with at least one like.
func (u *UserKNN) Users() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.userVectors)
}

func (u *UserKNN) applyLocked(e *recommend.InteractionEvent) bool {
	if e.UserID == "" || e.ItemID == "" {
		return false
	}
	if !e.IsPositive() {
		negative := e.Type == recommend.InteractionDislike ||
			(e.Type == recommend.InteractionRate && e.Strength > 0 && e.Strength < 3)
		if !negative {
			return false
		}
		vec := u.userVectors[e.UserID]
		if _, ok := vec[e.ItemID]; !ok {
			return false
		}
		delete(vec, e.ItemID)
		if len(vec) == 0 {
			delete(u.userVectors, e.UserID)
		}
		delete(u.itemUsers[e.ItemID], e.UserID)
		if len(u.itemUsers[e.ItemID]) == 0 {
			delete(u.itemUsers, e.ItemID)
		}
		return true
	}

	w := e.SignalWeight()
	vec := u.userVectors[e.UserID]
	if vec == nil {
		vec = make(map[string]float64)
		u.userVectors[e.UserID] = vec
	}
	if w <= vec[e.ItemID] {
		return false
	}
	vec[e.ItemID] = w
	if u.itemUsers[e.ItemID] == nil {
		u.itemUsers[e.ItemID] = make(map[string]struct{})
	}
	u.itemUsers[e.ItemID][e.UserID] = struct{}{}
	return true
}

func (u *UserKNN) forgetLocked(userID string) {
	for itemID := range u.userVectors[userID] {
		delete(u.itemUsers[itemID], userID)
		if len(u.itemUsers[itemID]) == 0 {
			delete(u.itemUsers, itemID)
		}
	}
	delete(u.userVectors, userID)
}

// Score implements recommend.CollaborativeSignal.
func (u *UserKNN) Score(ctx context.Context, userID string, itemIDs []string) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	u.mu.RLock()
	defer u.mu.RUnlock()

	neighbors, ok := u.neighbors.Get(userID)
	if !ok {
		neighbors = u.computeUserNeighbors(userID)
		u.neighbors.Set(userID, neighbors)
	}

	scores := make(map[string]float64, len(itemIDs))
	if len(neighbors) == 0 {
		return scores, nil
	}

	var den float64
	for _, n := range neighbors {
		den += n.Similarity
	}
	for _, itemID := range itemIDs {
		var num float64
		for _, n := range neighbors {
			if w, ok := u.userVectors[n.ID][itemID]; ok {
				num += n.Similarity * w
			}
		}
		if num > 0 {
			scores[itemID] = math.Min(1, num/den)
		}
	}
	return scores, nil
}

// computeUserNeighbors finds the K most similar users among those sharing
// at least one liked item. Caller holds u.mu.
func (u *UserKNN) computeUserNeighbors(userID string) []neighbor {
	userVec := u.userVectors[userID]
	if len(userVec) == 0 {
		return nil
	}

	seen := make(map[string]struct{})
	var neighbors []neighbor
	for itemID := range userVec {
		for otherID := range u.itemUsers[itemID] {
			if otherID == userID {
				continue
			}
			if _, ok := seen[otherID]; ok {
				continue
			}
			seen[otherID] = struct{}{}

			sim := u.computeSimilarity(userVec, u.userVectors[otherID])
			if sim >= u.cfg.MinSimilarity {
				neighbors = append(neighbors, neighbor{ID: otherID, Similarity: sim})
			}
		}
	}

	// Sort by similarity (descending, ties by ID) and take top K
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Similarity != neighbors[j].Similarity {
			return neighbors[i].Similarity > neighbors[j].Similarity
		}
		return neighbors[i].ID < neighbors[j].ID
	})
	if len(neighbors) > u.cfg.K {
		neighbors = neighbors[:u.cfg.K]
	}
	return neighbors
}

// computeSimilarity is the shrunk cosine similarity of two like vectors.
func (u *UserKNN) computeSimilarity(a, b map[string]float64) float64 {
	var dot, normA, normB float64
	common := 0
	for item, wa := range a {
		if wb, ok := b[item]; ok {
			dot += wa * wb
			common++
		}
		normA += wa * wa
	}
	if common < u.cfg.MinCommonItems {
		return 0
	}
	for _, wb := range b {
		normB += wb * wb
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if u.cfg.Shrinkage > 0 {
		sim = sim * float64(common) / (float64(common) + u.cfg.Shrinkage)
	}
	return sim
}

// Ensure interface compliance.
var (
	_ recommend.CollaborativeSignal = (*UserKNN)(nil)
	_ recommend.FeedbackObserver    = (*UserKNN)(nil)
)
