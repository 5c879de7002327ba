package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docchat-ai/docchat/internal/core"
	"github.com/docchat-ai/docchat/internal/logger"
	"github.com/docchat-ai/docchat/internal/models"
)

// ---- fakes ----

type fakeDB struct {
	mu     sync.Mutex
	users  map[string]*models.User
	docs   map[string]*models.Document
	chunks map[string]models.DocumentChunk // keyed by vector ref
	convs  map[string]*models.Conversation
	msgs   map[string][]models.Message
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		users:  make(map[string]*models.User),
		docs:   make(map[string]*models.Document),
		chunks: make(map[string]models.DocumentChunk),
		convs:  make(map[string]*models.Conversation),
		msgs:   make(map[string][]models.Message),
	}
}

func (d *fakeDB) CreateUser(_ context.Context, u *models.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.Email] = u
	return nil
}

func (d *fakeDB) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.users[email], nil
}

func (d *fakeDB) CreateDocument(_ context.Context, doc *models.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *doc
	d.docs[doc.ID] = &cp
	return nil
}

func (d *fakeDB) GetDocumentByID(_ context.Context, id string) (*models.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.docs[id]
	if !ok {
		return nil, core.ErrDocumentNotFound
	}
	cp := *doc
	return &cp, nil
}

func (d *fakeDB) GetDocumentBySourcePath(_ context.Context, sourcePath string) (*models.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, doc := range d.docs {
		if doc.SourcePath == sourcePath {
			cp := *doc
			return &cp, nil
		}
	}
	return nil, core.ErrDocumentNotFound
}

func (d *fakeDB) ListDocumentsByOwner(_ context.Context, ownerID string) ([]models.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []models.Document
	for _, doc := range d.docs {
		if doc.OwnerID == ownerID {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (d *fakeDB) BeginProcessing(_ context.Context, id string) (*models.Document, error) {
	return d.GetDocumentByID(context.Background(), id)
}

func (d *fakeDB) MarkFailed(context.Context, string) error { return nil }

func (d *fakeDB) ReplaceDocumentChunks(context.Context, string, string, []models.DocumentChunk) ([]string, error) {
	return nil, nil
}

func (d *fakeDB) GetChunksByDocument(_ context.Context, documentID string) ([]models.DocumentChunk, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []models.DocumentChunk
	for _, ch := range d.chunks {
		if ch.DocumentID == documentID {
			out = append(out, ch)
		}
	}
	return out, nil
}

// GetChunksByVectorRefs deliberately returns rows in reverse request
// order; callers own hit ordering.
func (d *fakeDB) GetChunksByVectorRefs(_ context.Context, refs []string) ([]models.DocumentChunk, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []models.DocumentChunk
	for i := len(refs) - 1; i >= 0; i-- {
		if ch, ok := d.chunks[refs[i]]; ok {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (d *fakeDB) DeleteDocument(_ context.Context, id string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var retired []string
	for ref, ch := range d.chunks {
		if ch.DocumentID == id {
			retired = append(retired, ref)
			delete(d.chunks, ref)
		}
	}
	delete(d.docs, id)
	return retired, nil
}

func (d *fakeDB) CreateConversation(_ context.Context, ownerID string) (*models.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	conv := &models.Conversation{ID: uuid.NewString(), OwnerID: ownerID, State: models.ConversationActive}
	d.convs[conv.ID] = conv
	return conv, nil
}

func (d *fakeDB) GetConversationByID(_ context.Context, id string) (*models.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	conv, ok := d.convs[id]
	if !ok {
		return nil, core.ErrConversationNotFound
	}
	cp := *conv
	return &cp, nil
}

func (d *fakeDB) ArchiveConversation(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	conv, ok := d.convs[id]
	if !ok {
		return core.ErrConversationNotFound
	}
	conv.State = models.ConversationArchived
	return nil
}

func (d *fakeDB) appendLocked(msg *models.Message) error {
	conv, ok := d.convs[msg.ConversationID]
	if !ok {
		return core.ErrConversationNotFound
	}
	if conv.State == models.ConversationArchived {
		return core.ErrConversationArchived
	}
	msg.Seq = int64(len(d.msgs[conv.ID]) + 1)
	if msg.ContextRefs == nil {
		msg.ContextRefs = []string{}
	}
	d.msgs[conv.ID] = append(d.msgs[conv.ID], *msg)
	return nil
}

func (d *fakeDB) AppendMessage(_ context.Context, msg *models.Message) (*models.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.appendLocked(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (d *fakeDB) AppendTurn(_ context.Context, userMsg, assistantMsg *models.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.appendLocked(userMsg); err != nil {
		return err
	}
	return d.appendLocked(assistantMsg)
}

func (d *fakeDB) ListMessages(_ context.Context, conversationID string, sinceSeq int64) ([]models.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.convs[conversationID]; !ok {
		return nil, core.ErrConversationNotFound
	}
	var out []models.Message
	for _, m := range d.msgs[conversationID] {
		if m.Seq > sinceSeq {
			out = append(out, m)
		}
	}
	return out, nil
}

func (d *fakeDB) Close() error { return nil }

type fakeSearchIndex struct {
	hits       []core.SearchHit
	lastK      int
	lastFilter *core.SearchFilter
}

func (x *fakeSearchIndex) Upsert(context.Context, string, []float32, core.ChunkMetadata) error {
	return nil
}
func (x *fakeSearchIndex) Delete(context.Context, ...string) error { return nil }

func (x *fakeSearchIndex) Search(_ context.Context, _ []float32, k int, filter *core.SearchFilter) ([]core.SearchHit, error) {
	x.lastK = k
	x.lastFilter = filter
	if len(x.hits) > k {
		return x.hits[:k], nil
	}
	return x.hits, nil
}

func (x *fakeSearchIndex) Close() error { return nil }

type fakeQueryEmbedder struct {
	lastTexts []string
	err       error
}

func (e *fakeQueryEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	e.lastTexts = texts
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type fakeLLM struct {
	answer     string
	err        error
	lastSystem string
	lastUser   string
}

func (l *fakeLLM) Generate(_ context.Context, system, user string) (string, error) {
	l.lastSystem = system
	l.lastUser = user
	if l.err != nil {
		return "", l.err
	}
	return l.answer, nil
}

// ---- harness ----

type chatFixture struct {
	db    *fakeDB
	index *fakeSearchIndex
	emb   *fakeQueryEmbedder
	llm   *fakeLLM
	svc   *ChatService
	owner string
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	f := &chatFixture{
		db:    newFakeDB(),
		index: &fakeSearchIndex{},
		emb:   &fakeQueryEmbedder{},
		llm:   &fakeLLM{answer: "grounded answer"},
		owner: uuid.NewString(),
	}
	f.svc = NewChatService(f.db, f.index, f.emb, f.llm, 5, 10, logger.NewNop())
	return f
}

// seedChunks registers chunks for one document and makes the index
// return them as hits in the given order.
func (f *chatFixture) seedChunks(docID string, texts ...string) []models.DocumentChunk {
	doc := &models.Document{ID: docID, OwnerID: f.owner, Status: models.DocumentProcessed}
	f.db.docs[docID] = doc

	out := make([]models.DocumentChunk, len(texts))
	f.index.hits = nil
	for i, text := range texts {
		ch := models.DocumentChunk{
			ID:            uuid.NewString(),
			DocumentID:    docID,
			SequenceIndex: i,
			Text:          text,
			VectorRef:     uuid.NewString(),
		}
		f.db.chunks[ch.VectorRef] = ch
		f.index.hits = append(f.index.hits, core.SearchHit{VectorRef: ch.VectorRef, Score: 1 - float64(i)*0.1})
		out[i] = ch
	}
	return out
}

func (f *chatFixture) newConversation(t *testing.T) *models.Conversation {
	t.Helper()
	conv, err := f.svc.CreateConversation(context.Background(), f.owner)
	require.NoError(t, err)
	return conv
}

// ---- tests ----

func TestSendMessage_PersistsTurnWithContextRefs(t *testing.T) {
	f := newChatFixture(t)
	chunks := f.seedChunks(uuid.NewString(), "first span", "second span", "third span")
	conv := f.newConversation(t)

	turn, err := f.svc.SendMessage(context.Background(), f.owner, conv.ID, "what is in the doc?", nil)
	require.NoError(t, err)

	assert.Equal(t, models.RoleUser, turn.UserMessage.Role)
	assert.Equal(t, int64(1), turn.UserMessage.Seq)
	assert.Equal(t, models.RoleAssistant, turn.AssistantMessage.Role)
	assert.Equal(t, int64(2), turn.AssistantMessage.Seq)
	assert.Equal(t, "grounded answer", turn.AssistantMessage.Content)

	wantRefs := []string{chunks[0].ID, chunks[1].ID, chunks[2].ID}
	assert.Equal(t, wantRefs, turn.AssistantMessage.ContextRefs, "refs follow score order")
	require.Len(t, turn.Sources, 3)
	assert.Equal(t, "first span", turn.Sources[0].Text)

	msgs, err := f.db.ListMessages(context.Background(), conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Contains(t, f.llm.lastUser, "first span")
	assert.Contains(t, f.llm.lastUser, "Question: what is in the doc?")
}

func TestSendMessage_SelectionScopesRetrieval(t *testing.T) {
	f := newChatFixture(t)
	docID := uuid.NewString()
	f.seedChunks(docID, "selected paragraph body")
	conv := f.newConversation(t)

	sel := &models.SelectionContext{DocumentID: docID, Text: "selected paragraph"}
	_, err := f.svc.SendMessage(context.Background(), f.owner, conv.ID, "explain this", sel)
	require.NoError(t, err)

	require.NotNil(t, f.index.lastFilter)
	assert.Equal(t, docID, f.index.lastFilter.DocumentID)
	require.Len(t, f.emb.lastTexts, 1)
	assert.Contains(t, f.emb.lastTexts[0], "selected paragraph")
	assert.Contains(t, f.emb.lastTexts[0], "explain this")
}

func TestSendMessage_SelectionOnForeignDocumentRejected(t *testing.T) {
	f := newChatFixture(t)
	docID := uuid.NewString()
	f.seedChunks(docID, "private text")
	f.db.docs[docID].OwnerID = uuid.NewString()
	conv := f.newConversation(t)

	sel := &models.SelectionContext{DocumentID: docID}
	_, err := f.svc.SendMessage(context.Background(), f.owner, conv.ID, "explain", sel)
	assert.ErrorIs(t, err, core.ErrDocumentNotFound)
}

func TestSendMessage_GenerationFailureKeepsUserMessage(t *testing.T) {
	f := newChatFixture(t)
	f.seedChunks(uuid.NewString(), "some span")
	conv := f.newConversation(t)
	f.llm.err = errors.New("model overloaded")

	_, err := f.svc.SendMessage(context.Background(), f.owner, conv.ID, "doomed question", nil)
	require.ErrorIs(t, err, core.ErrGenerationFailure)

	msgs, listErr := f.db.ListMessages(context.Background(), conv.ID, 0)
	require.NoError(t, listErr)
	require.Len(t, msgs, 1, "only the user message survives a failed turn")
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, "doomed question", msgs[0].Content)
}

func TestSendMessage_EmptyRetrievalStillAnswers(t *testing.T) {
	f := newChatFixture(t)
	conv := f.newConversation(t)

	turn, err := f.svc.SendMessage(context.Background(), f.owner, conv.ID, "anything indexed?", nil)
	require.NoError(t, err)
	assert.Empty(t, turn.AssistantMessage.ContextRefs)
	assert.Empty(t, turn.Sources)
}

func TestSendMessage_ArchivedConversationRejected(t *testing.T) {
	f := newChatFixture(t)
	conv := f.newConversation(t)
	require.NoError(t, f.svc.Archive(context.Background(), f.owner, conv.ID))

	_, err := f.svc.SendMessage(context.Background(), f.owner, conv.ID, "still there?", nil)
	assert.ErrorIs(t, err, core.ErrConversationArchived)

	msgs, listErr := f.db.ListMessages(context.Background(), conv.ID, 0)
	require.NoError(t, listErr)
	assert.Empty(t, msgs)
}

func TestSendMessage_ForeignConversationHidden(t *testing.T) {
	f := newChatFixture(t)
	conv := f.newConversation(t)

	_, err := f.svc.SendMessage(context.Background(), uuid.NewString(), conv.ID, "hello", nil)
	assert.ErrorIs(t, err, core.ErrConversationNotFound)
}

func TestSendMessage_EmptyQueryRejected(t *testing.T) {
	f := newChatFixture(t)
	conv := f.newConversation(t)

	_, err := f.svc.SendMessage(context.Background(), f.owner, conv.ID, "   ", nil)
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
}

func TestListMessages_SinceSeq(t *testing.T) {
	f := newChatFixture(t)
	f.seedChunks(uuid.NewString(), "span")
	conv := f.newConversation(t)

	_, err := f.svc.SendMessage(context.Background(), f.owner, conv.ID, "first", nil)
	require.NoError(t, err)
	_, err = f.svc.SendMessage(context.Background(), f.owner, conv.ID, "second", nil)
	require.NoError(t, err)

	msgs, err := f.svc.ListMessages(context.Background(), f.owner, conv.ID, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(3), msgs[0].Seq)
	assert.Equal(t, "second", msgs[0].Content)
}

func TestHistoryWindowBoundsPrompt(t *testing.T) {
	f := newChatFixture(t)
	f.seedChunks(uuid.NewString(), "span")
	f.svc = NewChatService(f.db, f.index, f.emb, f.llm, 5, 2, logger.NewNop())
	conv := f.newConversation(t)

	for _, q := range []string{"one", "two", "three"} {
		_, err := f.svc.SendMessage(context.Background(), f.owner, conv.ID, q, nil)
		require.NoError(t, err)
	}

	// Window of 2 covers the previous turn only; the first turn must
	// have aged out of the prompt.
	assert.NotContains(t, f.llm.lastUser, "User: one")
	assert.Contains(t, f.llm.lastUser, "User: two")
}
