package equivalence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	log "github.com/sirupsen/logrus"

	"github.com/agoralabs/agora/capability"
	"github.com/agoralabs/agora/common"
	"github.com/agoralabs/agora/common/util"
	"github.com/agoralabs/agora/core"
	"github.com/agoralabs/agora/metrics"
)

var logger = util.GetLoggerForModule("equivalence")

const verdictCacheSize = 4096

// Evaluator decides whether the outputs collected for one
// non-deterministic block are equivalent under the block's declared
// principle. Semantic judgments are delegated to the arbiter, an LLM
// capability invoked in arbitration mode; its verdicts are cached since
// identical output pairs recur across rounds and appeals.
type Evaluator struct {
	arbiter capability.Provider
	cache   *lru.Cache
}

// NewEvaluator creates an evaluator over the given arbiter.
func NewEvaluator(arbiter capability.Provider) *Evaluator {
	cache, err := lru.New(verdictCacheSize)
	if err != nil {
		panic(err)
	}
	return &Evaluator{
		arbiter: arbiter,
		cache:   cache,
	}
}

// Evaluate judges the outputs (keyed by validator) under the block's
// principle. quorum is the minimum agreeing-cluster size for an
// Equivalent outcome. Arbiter failures surface as errors so the caller
// can classify the round accordingly.
func (ev *Evaluator) Evaluate(ctx context.Context, decl core.BlockDecl, outputs map[string]common.Bytes, quorum int) (*core.EquivalenceVerdict, error) {
	switch decl.Principle {
	case core.PrincipleStrict:
		return ev.evaluateStrict(decl, outputs, quorum), nil
	case core.PrincipleComparative:
		return ev.evaluateComparative(ctx, decl, outputs, quorum)
	case core.PrincipleNonComparative:
		return ev.evaluateNonComparative(ctx, decl, outputs, quorum)
	default:
		return nil, fmt.Errorf("unknown principle: %v", decl.Principle)
	}
}

// evaluateStrict requires byte-identical outputs after
// canonicalization. Outputs that fail to canonicalize dissent.
func (ev *Evaluator) evaluateStrict(decl core.BlockDecl, outputs map[string]common.Bytes, quorum int) *core.EquivalenceVerdict {
	groups := make(map[common.Hash][]string)
	canonical := make(map[common.Hash]common.Bytes)
	var malformed []string

	for _, validator := range sortedValidators(outputs) {
		c, err := common.CanonicalizeJSON(outputs[validator])
		if err != nil {
			malformed = append(malformed, validator)
			continue
		}
		digest := common.DigestBytes(c)
		groups[digest] = append(groups[digest], validator)
		canonical[digest] = c
	}

	var winner common.Hash
	best := 0
	for digest, members := range groups {
		if len(members) > best || (len(members) == best && bytes.Compare(digest[:], winner[:]) < 0) {
			winner = digest
			best = len(members)
		}
	}

	verdict := &core.EquivalenceVerdict{BlockID: decl.ID}
	if best >= quorum && best == len(outputs) {
		verdict.Outcome = core.Equivalent
		verdict.CanonicalOutput = canonical[winner]
		return verdict
	}

	// Under the strict principle any dissent at all is divergence; the
	// majority group is still reported so dissenters can be flagged.
	verdict.Outcome = core.Divergent
	if best > 0 {
		verdict.CanonicalOutput = canonical[winner]
	}
	for digest, members := range groups {
		if digest == winner {
			continue
		}
		verdict.Dissenters = append(verdict.Dissenters, members...)
	}
	verdict.Dissenters = append(verdict.Dissenters, malformed...)
	sort.Strings(verdict.Dissenters)
	return verdict
}

// evaluateComparative clusters outputs by pairwise semantic agreement
// and accepts when a cluster reaches quorum. The canonical output is
// the cluster member with the smallest digest, so every honest node
// elects the same representative.
func (ev *Evaluator) evaluateComparative(ctx context.Context, decl core.BlockDecl, outputs map[string]common.Bytes, quorum int) (*core.EquivalenceVerdict, error) {
	validators := sortedValidators(outputs)
	uf := newUnionFind(len(validators))

	for i := 0; i < len(validators); i++ {
		for j := i + 1; j < len(validators); j++ {
			if uf.find(i) == uf.find(j) {
				continue
			}
			same, err := ev.arbitratePair(ctx, decl, outputs[validators[i]], outputs[validators[j]])
			if err != nil {
				return nil, err
			}
			if same {
				uf.union(i, j)
			}
		}
	}

	clusters := make(map[int][]int)
	for i := range validators {
		root := uf.find(i)
		clusters[root] = append(clusters[root], i)
	}

	// Ties between equal-sized clusters break on the smallest member
	// index, which is deterministic since validators is sorted.
	bestRoot, best := -1, 0
	for root, members := range clusters {
		if len(members) > best || (len(members) == best && members[0] < clusters[bestRoot][0]) {
			bestRoot, best = root, len(members)
		}
	}

	verdict := &core.EquivalenceVerdict{BlockID: decl.ID}
	if best >= quorum {
		verdict.Outcome = core.Equivalent
		var canonicalDigest common.Hash
		for _, idx := range clusters[bestRoot] {
			digest := common.DigestBytes(outputs[validators[idx]])
			if verdict.CanonicalOutput == nil || bytes.Compare(digest[:], canonicalDigest[:]) < 0 {
				canonicalDigest = digest
				verdict.CanonicalOutput = outputs[validators[idx]]
			}
		}
	} else {
		verdict.Outcome = core.Divergent
	}

	// Members outside the largest cluster dissent either way.
	member := make(map[int]bool, best)
	for _, idx := range clusters[bestRoot] {
		member[idx] = true
	}
	for i, validator := range validators {
		if !member[i] {
			verdict.Dissenters = append(verdict.Dissenters, validator)
		}
	}
	return verdict, nil
}

// evaluateNonComparative judges each output independently against the
// author's criteria. Every submitted output must pass on its own: a
// single failing validator forces divergence no matter how many passed.
// Passing validators keep their own outputs.
func (ev *Evaluator) evaluateNonComparative(ctx context.Context, decl core.BlockDecl, outputs map[string]common.Bytes, quorum int) (*core.EquivalenceVerdict, error) {
	verdict := &core.EquivalenceVerdict{
		BlockID:      decl.ID,
		PerValidator: make(map[string]common.Bytes),
	}

	for _, validator := range sortedValidators(outputs) {
		ok, err := ev.arbitrateCriteria(ctx, decl, outputs[validator])
		if err != nil {
			return nil, err
		}
		if ok {
			verdict.PerValidator[validator] = outputs[validator]
		} else {
			verdict.Dissenters = append(verdict.Dissenters, validator)
		}
	}

	if len(verdict.Dissenters) == 0 {
		verdict.Outcome = core.Equivalent
	} else {
		verdict.Outcome = core.Divergent
	}
	return verdict, nil
}

type pairQuestion struct {
	Question string `json:"question"`
	OutputA  string `json:"outputA"`
	OutputB  string `json:"outputB"`
}

type criteriaQuestion struct {
	Criteria string `json:"criteria"`
	Output   string `json:"output"`
}

// arbitratePair asks the arbiter whether two outputs are equivalent
// under the block's question. The cache key is symmetric in the pair.
func (ev *Evaluator) arbitratePair(ctx context.Context, decl core.BlockDecl, a, b common.Bytes) (bool, error) {
	da, db := common.DigestBytes(a), common.DigestBytes(b)
	if da == db {
		return true, nil
	}
	if bytes.Compare(da[:], db[:]) > 0 {
		da, db = db, da
		a, b = b, a
	}
	key := fmt.Sprintf("pair/%x/%v/%v", common.DigestBytes([]byte(decl.Question)), da, db)
	if cached, ok := ev.cache.Get(key); ok {
		return cached.(bool), nil
	}

	payload, err := json.Marshal(pairQuestion{
		Question: decl.Question,
		OutputA:  string(a),
		OutputB:  string(b),
	})
	if err != nil {
		return false, err
	}
	same, err := ev.askYesNo(ctx, payload)
	if err != nil {
		return false, err
	}
	metrics.ArbitrationsTotal.WithLabelValues("pair").Inc()
	ev.cache.Add(key, same)
	return same, nil
}

// arbitrateCriteria asks the arbiter whether one output satisfies the
// block's acceptance criteria.
func (ev *Evaluator) arbitrateCriteria(ctx context.Context, decl core.BlockDecl, out common.Bytes) (bool, error) {
	key := fmt.Sprintf("criteria/%x/%v", common.DigestBytes([]byte(decl.Criteria)), common.DigestBytes(out))
	if cached, ok := ev.cache.Get(key); ok {
		return cached.(bool), nil
	}

	payload, err := json.Marshal(criteriaQuestion{
		Criteria: decl.Criteria,
		Output:   string(out),
	})
	if err != nil {
		return false, err
	}
	ok, err := ev.askYesNo(ctx, payload)
	if err != nil {
		return false, err
	}
	metrics.ArbitrationsTotal.WithLabelValues("criteria").Inc()
	ev.cache.Add(key, ok)
	return ok, nil
}

// askYesNo invokes the arbiter and parses its answer. Anything the
// arbiter returns that is not a recognizable yes/no is an error, not a
// no: an unreadable verdict must not silently reject outputs.
func (ev *Evaluator) askYesNo(ctx context.Context, payload common.Bytes) (bool, error) {
	answer, err := ev.arbiter.Invoke(ctx, capability.BlockSpec{
		Kind:    core.CapabilityLLM,
		Payload: payload,
		Mode:    capability.ModeArbitration,
	})
	if err != nil {
		return false, err
	}

	text := strings.ToLower(strings.TrimSpace(string(answer)))
	text = strings.Trim(text, `"'.`)
	switch text {
	case "yes", "true", "equivalent":
		return true, nil
	case "no", "false", "divergent":
		return false, nil
	}
	logger.WithFields(log.Fields{"answer": string(answer)}).Warn("Unparseable arbiter verdict")
	return false, fmt.Errorf("unparseable arbiter verdict: %q", answer)
}

func sortedValidators(outputs map[string]common.Bytes) []string {
	ids := make([]string, 0, len(outputs))
	for id := range outputs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// unionFind is a plain union-find over indices, used to grow agreement
// clusters from pairwise verdicts.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(i int) int {
	for uf.parent[i] != i {
		uf.parent[i] = uf.parent[uf.parent[i]]
		i = uf.parent[i]
	}
	return i
}

func (uf *unionFind) union(i, j int) {
	uf.parent[uf.find(i)] = uf.find(j)
}
