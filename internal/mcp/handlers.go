package mcp

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/rtkai/icm/internal/icmerr"
	"github.com/rtkai/icm/internal/storage"
)

type toolHandler func(ctx context.Context, args map[string]interface{}) ToolCallResult

func (s *Server) toolHandlers() map[string]toolHandler {
	handlers := map[string]toolHandler{
		"icm_store":              s.toolStore,
		"icm_recall":             s.toolRecall,
		"icm_forget":             s.toolForget,
		"icm_consolidate":        s.toolConsolidate,
		"icm_list_topics":        s.toolListTopics,
		"icm_stats":              s.toolStats,
		"icm_memoir_create":      s.toolMemoirCreate,
		"icm_memoir_list":        s.toolMemoirList,
		"icm_memoir_show":        s.toolMemoirShow,
		"icm_memoir_add_concept": s.toolMemoirAddConcept,
		"icm_memoir_refine":      s.toolMemoirRefine,
		"icm_memoir_search":      s.toolMemoirSearch,
		"icm_concept_search":     s.toolConceptSearchGlobal,
		"icm_memoir_link":        s.toolMemoirLink,
		"icm_memoir_inspect":     s.toolMemoirInspect,
	}
	if s.embedder != nil {
		handlers["icm_embed_all"] = s.toolEmbedAll
	}
	return handlers
}

func errOut(err error) ToolCallResult {
	return errorResult(err.Error())
}

// --- memory tools -----------------------------------------------------

func (s *Server) toolStore(ctx context.Context, args map[string]interface{}) ToolCallResult {
	topic, _ := getStr(args, "topic")
	content, _ := getStr(args, "content")
	if topic == "" || content == "" {
		return errorResult("topic and content are required")
	}

	importance := storage.Importance(getStrDefault(args, "importance", string(storage.ImportanceMedium)))
	switch importance {
	case storage.ImportanceCritical, storage.ImportanceHigh, storage.ImportanceMedium, storage.ImportanceLow:
	default:
		importance = storage.ImportanceMedium
	}

	m := storage.NewMemory(topic, content, importance)
	if kws := getStrSlice(args, "keywords"); kws != nil {
		m.Keywords = kws
	}
	if raw, ok := getStr(args, "raw_excerpt"); ok && raw != "" {
		m.RawExcerpt = &raw
	}

	if s.embedder != nil {
		// Embedding failures are non-fatal: the memory is stored without a
		// vector and recall falls back to lexical search for it.
		if vec, err := s.embedder.Embed(ctx, content); err == nil {
			m.Embedding = vec
		} else {
			log.Printf("icm_store: embedding failed, storing without vector: %v", err)
		}
	}

	id, err := s.memories.Store(ctx, m)
	if err != nil {
		return errOut(err)
	}
	return textResult("Stored memory: " + id)
}

func (s *Server) toolRecall(ctx context.Context, args map[string]interface{}) ToolCallResult {
	query, _ := getStr(args, "query")
	if query == "" {
		return errorResult("query is required")
	}
	limit := getInt(args, "limit", s.recallLimit)
	if limit < 1 {
		limit = 1
	}
	if limit > 20 {
		limit = 20
	}
	topic, _ := getStr(args, "topic")

	results, err := s.recall(ctx, query, limit)
	if err != nil {
		return errOut(err)
	}

	if topic != "" {
		filtered := results[:0]
		for _, r := range results {
			if r.Memory.Topic == topic {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	for _, r := range results {
		// Access-update failures are non-fatal: recall still returns the
		// matched memories even if the bookkeeping update fails.
		_ = s.memories.UpdateAccess(ctx, r.Memory.ID)
	}

	if len(results) == 0 {
		return textResult("No memories found.")
	}

	var sb strings.Builder
	for _, r := range results {
		m := r.Memory
		fmt.Fprintf(&sb, "--- %s ---\n", m.ID)
		fmt.Fprintf(&sb, "  topic: %s\n", m.Topic)
		fmt.Fprintf(&sb, "  importance: %s\n", m.Importance)
		fmt.Fprintf(&sb, "  weight: %.3f\n", m.Weight)
		fmt.Fprintf(&sb, "  summary: %s\n", m.Summary)
		if len(m.Keywords) > 0 {
			fmt.Fprintf(&sb, "  keywords: %s\n", strings.Join(m.Keywords, ", "))
		}
		if m.RawExcerpt != nil && *m.RawExcerpt != "" {
			fmt.Fprintf(&sb, "  raw: %s\n", *m.RawExcerpt)
		}
	}
	return textResult(sb.String())
}

// recall implements the ordering the dispatcher always applies: hybrid
// search when an embedding capability is available, falling back to
// full-text search, falling back further to keyword search on an empty
// FTS result.
func (s *Server) recall(ctx context.Context, query string, limit int) ([]storage.SearchResult, error) {
	if s.embedder != nil {
		if vec, err := s.embedder.Embed(ctx, query); err == nil {
			results, err := s.memories.SearchHybrid(ctx, query, vec, limit)
			if err == nil && len(results) > 0 {
				return results, nil
			}
		}
	}

	results, err := s.memories.SearchFTS(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if len(results) > 0 {
		return results, nil
	}

	return s.memories.SearchByKeywords(ctx, strings.Fields(query), limit)
}

func (s *Server) toolForget(ctx context.Context, args map[string]interface{}) ToolCallResult {
	id, _ := getStr(args, "id")
	if id == "" {
		return errorResult("id is required")
	}
	if err := s.memories.Delete(ctx, id); err != nil {
		return errOut(err)
	}
	return textResult("Forgot memory: " + id)
}

func (s *Server) toolConsolidate(ctx context.Context, args map[string]interface{}) ToolCallResult {
	topic, _ := getStr(args, "topic")
	summary, _ := getStr(args, "summary")
	if topic == "" || summary == "" {
		return errorResult("topic and summary are required")
	}
	consolidated := storage.NewMemory(topic, summary, storage.ImportanceHigh)
	id, err := s.memories.ConsolidateTopic(ctx, topic, consolidated)
	if err != nil {
		return errOut(err)
	}
	return textResult(fmt.Sprintf("Consolidated topic '%s' into memory: %s", topic, id))
}

func (s *Server) toolListTopics(ctx context.Context, args map[string]interface{}) ToolCallResult {
	topics, err := s.memories.ListTopics(ctx)
	if err != nil {
		return errOut(err)
	}
	if len(topics) == 0 {
		return textResult("No topics yet.")
	}
	var sb strings.Builder
	for _, t := range topics {
		fmt.Fprintf(&sb, "%s: %d\n", t.Topic, t.Count)
	}
	return textResult(sb.String())
}

func (s *Server) toolStats(ctx context.Context, args map[string]interface{}) ToolCallResult {
	stats, err := s.memories.Stats(ctx)
	if err != nil {
		return errOut(err)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Memories: %d\n", stats.TotalMemories)
	fmt.Fprintf(&sb, "Topics: %d\n", stats.TotalTopics)
	fmt.Fprintf(&sb, "Avg weight: %.3f\n", stats.AvgWeight)
	if stats.OldestMemory != nil {
		fmt.Fprintf(&sb, "Oldest: %s\n", stats.OldestMemory.Format("2006-01-02T15:04:05Z"))
	}
	if stats.NewestMemory != nil {
		fmt.Fprintf(&sb, "Newest: %s\n", stats.NewestMemory.Format("2006-01-02T15:04:05Z"))
	}
	return textResult(sb.String())
}

func (s *Server) toolEmbedAll(ctx context.Context, args map[string]interface{}) ToolCallResult {
	topics, err := s.memories.ListTopics(ctx)
	if err != nil {
		return errOut(err)
	}

	var pending []storage.Memory
	for _, t := range topics {
		mems, err := s.memories.GetByTopic(ctx, t.Topic)
		if err != nil {
			return errOut(err)
		}
		for _, m := range mems {
			if len(m.Embedding) == 0 {
				pending = append(pending, m)
			}
		}
	}
	if len(pending) == 0 {
		return textResult("Nothing to embed.")
	}

	texts := make([]string, len(pending))
	for i, m := range pending {
		texts[i] = m.Summary
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return errOut(icmerr.Embeddingf("embed batch: %v", err))
	}

	embedded := 0
	for i, m := range pending {
		if i >= len(vectors) {
			break
		}
		m.Embedding = vectors[i]
		if err := s.memories.Update(ctx, &m); err == nil {
			embedded++
		}
	}
	return textResult(fmt.Sprintf("Embedded %d of %d memories.", embedded, len(pending)))
}

// --- memoir tools -------------------------------------------------------

func (s *Server) resolveMemoir(ctx context.Context, name string) (*storage.Memoir, error) {
	return s.memoirs.GetMemoirByName(ctx, name)
}

func (s *Server) resolveConcept(ctx context.Context, memoirID, name string) (*storage.Concept, error) {
	return s.memoirs.GetConceptByName(ctx, memoirID, name)
}

func (s *Server) toolMemoirCreate(ctx context.Context, args map[string]interface{}) ToolCallResult {
	name, _ := getStr(args, "name")
	if name == "" {
		return errorResult("name is required")
	}
	description, _ := getStr(args, "description")
	m := storage.NewMemoir(name, description)
	id, err := s.memoirs.CreateMemoir(ctx, m)
	if err != nil {
		return errOut(err)
	}
	return textResult(fmt.Sprintf("Created memoir: %s (%s)", name, id))
}

func (s *Server) toolMemoirList(ctx context.Context, args map[string]interface{}) ToolCallResult {
	memoirs, err := s.memoirs.ListMemoirs(ctx)
	if err != nil {
		return errOut(err)
	}
	if len(memoirs) == 0 {
		return textResult("No memoirs yet.")
	}
	var sb strings.Builder
	for _, m := range memoirs {
		stats, err := s.memoirs.MemoirStats(ctx, m.ID)
		if err != nil {
			return errOut(err)
		}
		fmt.Fprintf(&sb, "%s: %d concepts\n", m.Name, stats.TotalConcepts)
	}
	return textResult(sb.String())
}

func (s *Server) toolMemoirShow(ctx context.Context, args map[string]interface{}) ToolCallResult {
	name, _ := getStr(args, "name")
	if name == "" {
		return errorResult("name is required")
	}
	memoir, err := s.resolveMemoir(ctx, name)
	if err != nil {
		return errOut(err)
	}
	stats, err := s.memoirs.MemoirStats(ctx, memoir.ID)
	if err != nil {
		return errOut(err)
	}
	concepts, err := s.memoirs.ListConcepts(ctx, memoir.ID)
	if err != nil {
		return errOut(err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", memoir.Description)
	fmt.Fprintf(&sb, "Concepts: %d\n", stats.TotalConcepts)
	fmt.Fprintf(&sb, "Links: %d\n", stats.TotalLinks)
	fmt.Fprintf(&sb, "Avg confidence: %.3f\n", stats.AvgConfidence)
	for _, lc := range stats.LabelCounts {
		fmt.Fprintf(&sb, "  %s: %d\n", lc.Label, lc.Count)
	}
	for _, c := range concepts {
		fmt.Fprintf(&sb, "- %s [r%d c%.2f]: %s\n", c.Name, c.Revision, c.Confidence, c.Definition)
	}
	return textResult(sb.String())
}

func (s *Server) toolMemoirAddConcept(ctx context.Context, args map[string]interface{}) ToolCallResult {
	memoirName, _ := getStr(args, "memoir")
	name, _ := getStr(args, "name")
	definition, _ := getStr(args, "definition")
	if memoirName == "" || name == "" || definition == "" {
		return errorResult("memoir, name, and definition are required")
	}
	memoir, err := s.resolveMemoir(ctx, memoirName)
	if err != nil {
		return errOut(err)
	}

	c := storage.NewConcept(memoir.ID, name, definition)
	if labelsArg, ok := getStr(args, "labels"); ok {
		for _, seg := range parseCommaLabels(labelsArg) {
			c.Labels = append(c.Labels, storage.ParseLabel(seg))
		}
	}

	id, err := s.memoirs.AddConcept(ctx, c)
	if err != nil {
		return errOut(err)
	}
	return textResult(fmt.Sprintf("Added concept '%s' to memoir '%s' (%s)", name, memoirName, id))
}

func (s *Server) toolMemoirRefine(ctx context.Context, args map[string]interface{}) ToolCallResult {
	memoirName, _ := getStr(args, "memoir")
	name, _ := getStr(args, "name")
	definition, _ := getStr(args, "definition")
	if memoirName == "" || name == "" || definition == "" {
		return errorResult("memoir, name, and definition are required")
	}
	memoir, err := s.resolveMemoir(ctx, memoirName)
	if err != nil {
		return errOut(err)
	}
	concept, err := s.resolveConcept(ctx, memoir.ID, name)
	if err != nil {
		return errOut(err)
	}
	refined, err := s.memoirs.RefineConcept(ctx, concept.ID, definition, nil)
	if err != nil {
		return errOut(err)
	}
	return textResult(fmt.Sprintf("Refined '%s' (r%d, confidence=%.2f)", name, refined.Revision, refined.Confidence))
}

func (s *Server) toolMemoirSearch(ctx context.Context, args map[string]interface{}) ToolCallResult {
	memoirName, _ := getStr(args, "memoir")
	query, _ := getStr(args, "query")
	if memoirName == "" || query == "" {
		return errorResult("memoir and query are required")
	}
	limit := getInt(args, "limit", 10)
	memoir, err := s.resolveMemoir(ctx, memoirName)
	if err != nil {
		return errOut(err)
	}
	results, err := s.memoirs.SearchConceptsFTS(ctx, memoir.ID, query, limit)
	if err != nil {
		return errOut(err)
	}
	if len(results) == 0 {
		return textResult("No concepts found.")
	}
	var sb strings.Builder
	for _, r := range results {
		c := r.Concept
		fmt.Fprintf(&sb, "--- %s [r%d c%.2f] ---\n", c.Name, c.Revision, c.Confidence)
		fmt.Fprintf(&sb, "  %s\n", c.Definition)
		if len(c.Labels) > 0 {
			labels := make([]string, len(c.Labels))
			for i, l := range c.Labels {
				labels[i] = l.String()
			}
			fmt.Fprintf(&sb, "  labels: %s\n", strings.Join(labels, ", "))
		}
	}
	return textResult(sb.String())
}

func (s *Server) toolConceptSearchGlobal(ctx context.Context, args map[string]interface{}) ToolCallResult {
	query, _ := getStr(args, "query")
	if query == "" {
		return errorResult("query is required")
	}
	limit := getInt(args, "limit", 10)
	results, err := s.memoirs.SearchConceptsFTSGlobal(ctx, query, limit)
	if err != nil {
		return errOut(err)
	}
	if len(results) == 0 {
		return textResult("No concepts found.")
	}
	var sb strings.Builder
	for _, r := range results {
		c := r.Concept
		fmt.Fprintf(&sb, "--- %s [r%d c%.2f] ---\n", c.Name, c.Revision, c.Confidence)
		fmt.Fprintf(&sb, "  %s\n", c.Definition)
		if len(c.Labels) > 0 {
			labels := make([]string, len(c.Labels))
			for i, l := range c.Labels {
				labels[i] = l.String()
			}
			fmt.Fprintf(&sb, "  labels: %s\n", strings.Join(labels, ", "))
		}
	}
	return textResult(sb.String())
}

func (s *Server) toolMemoirLink(ctx context.Context, args map[string]interface{}) ToolCallResult {
	memoirName, _ := getStr(args, "memoir")
	fromName, _ := getStr(args, "from")
	toName, _ := getStr(args, "to")
	relationArg, _ := getStr(args, "relation")
	if memoirName == "" || fromName == "" || toName == "" || relationArg == "" {
		return errorResult("memoir, from, to, and relation are required")
	}
	relation := storage.Relation(relationArg)
	if !relation.IsValid() {
		return errorResult("invalid relation: " + relationArg)
	}

	memoir, err := s.resolveMemoir(ctx, memoirName)
	if err != nil {
		return errOut(err)
	}
	from, err := s.resolveConcept(ctx, memoir.ID, fromName)
	if err != nil {
		return errOut(err)
	}
	to, err := s.resolveConcept(ctx, memoir.ID, toName)
	if err != nil {
		return errOut(err)
	}
	if from.ID == to.ID {
		return errorResult("cannot link a concept to itself")
	}

	link := storage.NewConceptLink(from.ID, to.ID, relation)
	id, err := s.memoirs.AddLink(ctx, link)
	if err != nil {
		return errOut(err)
	}
	return textResult(fmt.Sprintf("Linked: %s --%s--> %s (%s)", fromName, relation, toName, id))
}

func (s *Server) toolMemoirInspect(ctx context.Context, args map[string]interface{}) ToolCallResult {
	memoirName, _ := getStr(args, "memoir")
	name, _ := getStr(args, "name")
	if memoirName == "" || name == "" {
		return errorResult("memoir and name are required")
	}
	depth := getInt(args, "depth", 1)
	if depth < 1 {
		depth = 1
	}

	memoir, err := s.resolveMemoir(ctx, memoirName)
	if err != nil {
		return errOut(err)
	}
	concept, err := s.resolveConcept(ctx, memoir.ID, name)
	if err != nil {
		return errOut(err)
	}
	neighborhood, err := s.memoirs.GetNeighborhood(ctx, concept.ID, depth)
	if err != nil {
		return errOut(err)
	}

	byID := map[string]storage.Concept{}
	for _, c := range neighborhood.Concepts {
		byID[c.ID] = c
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", concept.Definition)
	if len(concept.Labels) > 0 {
		labels := make([]string, len(concept.Labels))
		for i, l := range concept.Labels {
			labels[i] = l.String()
		}
		fmt.Fprintf(&sb, "labels: %s\n", strings.Join(labels, ", "))
	}
	if len(neighborhood.Links) == 0 {
		sb.WriteString("(no links)\n")
		return textResult(sb.String())
	}
	fmt.Fprintf(&sb, "Graph (depth=%d):\n", depth)
	for _, l := range neighborhood.Links {
		src := byID[l.SourceID].Name
		tgt := byID[l.TargetID].Name
		if src == "" {
			src = l.SourceID
		}
		if tgt == "" {
			tgt = l.TargetID
		}
		fmt.Fprintf(&sb, "  %s --%s--> %s\n", src, l.Relation, tgt)
	}
	return textResult(sb.String())
}
