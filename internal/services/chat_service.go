package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/docchat-ai/docchat/internal/core"
	"github.com/docchat-ai/docchat/internal/logger"
	"github.com/docchat-ai/docchat/internal/models"
)

const systemPrompt = "You are an intelligent assistant answering based only on the given document content. If unsure, say 'I cannot find this in the document.'"

// ChatService orchestrates one retrieval-augmented turn: embed the
// query, retrieve grounding chunks, build the prompt, generate, and
// persist the turn.
type ChatService struct {
	db       core.DbClient
	index    core.VectorIndex
	embedder core.EmbeddingProvider
	llm      core.LLMProvider
	log      *logger.Logger

	topK          int
	historyWindow int
}

func NewChatService(
	db core.DbClient,
	index core.VectorIndex,
	emb core.EmbeddingProvider,
	llm core.LLMProvider,
	topK, historyWindow int,
	log *logger.Logger,
) *ChatService {
	if topK <= 0 {
		topK = 5
	}
	if historyWindow <= 0 {
		historyWindow = 10
	}
	return &ChatService{
		db: db, index: index, embedder: emb, llm: llm, log: log,
		topK: topK, historyWindow: historyWindow,
	}
}

// ChatTurn is the persisted outcome of one SendMessage call.
type ChatTurn struct {
	UserMessage      models.Message         `json:"user_message"`
	AssistantMessage models.Message         `json:"assistant_message"`
	Sources          []models.DocumentChunk `json:"sources"`
}

func (s *ChatService) CreateConversation(ctx context.Context, ownerID string) (*models.Conversation, error) {
	return s.db.CreateConversation(ctx, ownerID)
}

// SendMessage runs one chat turn in conversation conversationID.
//
// When sel is non-nil retrieval is scoped to the selected document and
// seeded from the highlighted text. A generation failure still records
// the user message so the question is not lost, and surfaces
// ErrGenerationFailure; nothing assistant-side is written for a failed
// turn.
func (s *ChatService) SendMessage(ctx context.Context, ownerID, conversationID, query string, sel *models.SelectionContext) (*ChatTurn, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", core.ErrInvalidConfiguration)
	}

	conv, err := s.ownedConversation(ctx, ownerID, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.State == models.ConversationArchived {
		return nil, core.ErrConversationArchived
	}

	chunks, err := s.retrieve(ctx, ownerID, query, sel)
	if err != nil {
		return nil, err
	}

	history, err := s.recentHistory(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	userMsg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Content:        query,
	}

	answer, err := s.llm.Generate(ctx, systemPrompt, buildUserPrompt(history, chunks, query))
	if err != nil {
		// The question is kept even when the answer never arrives, so
		// a retried turn reads as a correction rather than a gap.
		if _, appendErr := s.db.AppendMessage(ctx, &userMsg); appendErr != nil {
			s.log.Error("failed to record user message after generation failure",
				"conversation_id", conv.ID, "error", appendErr)
		}
		return nil, fmt.Errorf("%w: %v", core.ErrGenerationFailure, err)
	}

	refs := make([]string, len(chunks))
	for i, ch := range chunks {
		refs[i] = ch.ID
	}
	assistantMsg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Content:        answer,
		ContextRefs:    refs,
	}

	if err := s.db.AppendTurn(ctx, &userMsg, &assistantMsg); err != nil {
		return nil, err
	}
	return &ChatTurn{UserMessage: userMsg, AssistantMessage: assistantMsg, Sources: chunks}, nil
}

// ListMessages returns the owner's view of a conversation, messages
// with seq > sinceSeq in order.
func (s *ChatService) ListMessages(ctx context.Context, ownerID, conversationID string, sinceSeq int64) ([]models.Message, error) {
	if _, err := s.ownedConversation(ctx, ownerID, conversationID); err != nil {
		return nil, err
	}
	return s.db.ListMessages(ctx, conversationID, sinceSeq)
}

// Archive makes the conversation read-only. History stays queryable.
func (s *ChatService) Archive(ctx context.Context, ownerID, conversationID string) error {
	if _, err := s.ownedConversation(ctx, ownerID, conversationID); err != nil {
		return err
	}
	return s.db.ArchiveConversation(ctx, conversationID)
}

// ownedConversation hides other owners' conversations behind not-found
// instead of leaking their existence.
func (s *ChatService) ownedConversation(ctx context.Context, ownerID, conversationID string) (*models.Conversation, error) {
	conv, err := s.db.GetConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.OwnerID != ownerID {
		return nil, core.ErrConversationNotFound
	}
	return conv, nil
}

// retrieve embeds the retrieval seed and resolves the top hits back to
// chunk rows, preserving score order. A selection scopes the search to
// its document and seeds it with the highlighted text.
func (s *ChatService) retrieve(ctx context.Context, ownerID, query string, sel *models.SelectionContext) ([]models.DocumentChunk, error) {
	seed := query
	var filter *core.SearchFilter
	if sel != nil {
		doc, err := s.db.GetDocumentByID(ctx, sel.DocumentID)
		if err != nil {
			return nil, err
		}
		if doc.OwnerID != ownerID {
			return nil, core.ErrDocumentNotFound
		}
		filter = &core.SearchFilter{DocumentID: sel.DocumentID}
		if t := strings.TrimSpace(sel.Text); t != "" {
			seed = t + "\n" + query
		}
	}

	vecs, err := s.embedder.EmbedTexts(ctx, []string{seed})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: expected one query vector, got %d", core.ErrEmbeddingUnavailable, len(vecs))
	}

	hits, err := s.index.Search(ctx, vecs[0], s.topK, filter)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	refs := make([]string, len(hits))
	for i, h := range hits {
		refs[i] = h.VectorRef
	}
	rows, err := s.db.GetChunksByVectorRefs(ctx, refs)
	if err != nil {
		return nil, err
	}

	byRef := make(map[string]models.DocumentChunk, len(rows))
	for _, ch := range rows {
		byRef[ch.VectorRef] = ch
	}
	ordered := make([]models.DocumentChunk, 0, len(hits))
	for _, h := range hits {
		// A hit whose ref no longer resolves lost a swap race; skip it.
		if ch, ok := byRef[h.VectorRef]; ok {
			ordered = append(ordered, ch)
		}
	}
	return ordered, nil
}

func (s *ChatService) recentHistory(ctx context.Context, conversationID string) ([]models.Message, error) {
	msgs, err := s.db.ListMessages(ctx, conversationID, 0)
	if err != nil {
		return nil, err
	}
	if len(msgs) > s.historyWindow {
		msgs = msgs[len(msgs)-s.historyWindow:]
	}
	return msgs, nil
}

func buildUserPrompt(history []models.Message, chunks []models.DocumentChunk, query string) string {
	var sb strings.Builder
	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, m := range history {
			if m.Role == models.RoleAssistant {
				sb.WriteString("Assistant: ")
			} else {
				sb.WriteString("User: ")
			}
			sb.WriteString(m.Content)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Context:\n")
	for _, ch := range chunks {
		sb.WriteString(ch.Text)
		sb.WriteString("\n---\n")
	}
	sb.WriteString("\nQuestion: ")
	sb.WriteString(query)
	return sb.String()
}
