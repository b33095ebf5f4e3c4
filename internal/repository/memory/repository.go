package memory

import (
	"context"
	"sort"
	"sync"

	"renopilot/internal/apperr"
	"renopilot/internal/model"
)

type InMemoryUserRepository struct {
	users map[string]*model.User
	mutex sync.RWMutex
}

func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{
		users: make(map[string]*model.User),
	}
}

func (r *InMemoryUserRepository) Create(ctx context.Context, user *model.User) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.users[user.ID] = user
	return nil
}

func (r *InMemoryUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	user, exists := r.users[id]
	if !exists {
		return nil, apperr.NotFound("user", id)
	}
	return user, nil
}

func (r *InMemoryUserRepository) FindByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, user := range r.users {
		if user.GoogleID == googleID {
			return user, nil
		}
	}
	return nil, apperr.NotFound("user", googleID)
}

func (r *InMemoryUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, apperr.NotFound("user", email)
}

func (r *InMemoryUserRepository) FindAll(ctx context.Context) ([]*model.User, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var users []*model.User
	for _, user := range r.users {
		users = append(users, user)
	}
	return users, nil
}

func (r *InMemoryUserRepository) Update(ctx context.Context, user *model.User) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	_, exists := r.users[user.ID]
	if !exists {
		return apperr.NotFound("user", user.ID)
	}
	r.users[user.ID] = user
	return nil
}

func (r *InMemoryUserRepository) Delete(ctx context.Context, id string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	delete(r.users, id)
	return nil
}

// Project repository implementation
type InMemoryProjectRepository struct {
	projects map[string]*model.Project
	mutex    sync.RWMutex
}

func NewInMemoryProjectRepository() *InMemoryProjectRepository {
	return &InMemoryProjectRepository{
		projects: make(map[string]*model.Project),
	}
}

func (r *InMemoryProjectRepository) Create(ctx context.Context, project *model.Project) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.projects[project.ID] = project
	return nil
}

func (r *InMemoryProjectRepository) FindByID(ctx context.Context, id string) (*model.Project, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	project, exists := r.projects[id]
	if !exists {
		return nil, apperr.NotFound("project", id)
	}
	return project, nil
}

func (r *InMemoryProjectRepository) FindByUserID(ctx context.Context, userID string) ([]*model.Project, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var result []*model.Project
	for _, project := range r.projects {
		if project.UserID == userID {
			result = append(result, project)
		}
	}
	return result, nil
}

func (r *InMemoryProjectRepository) Update(ctx context.Context, project *model.Project) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	_, exists := r.projects[project.ID]
	if !exists {
		return apperr.NotFound("project", project.ID)
	}
	r.projects[project.ID] = project
	return nil
}

func (r *InMemoryProjectRepository) Delete(ctx context.Context, id string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	delete(r.projects, id)
	return nil
}

// Contractor repository implementation
type InMemoryContractorRepository struct {
	contractors map[string]*model.Contractor
	mutex       sync.RWMutex
}

func NewInMemoryContractorRepository() *InMemoryContractorRepository {
	return &InMemoryContractorRepository{
		contractors: make(map[string]*model.Contractor),
	}
}

func (r *InMemoryContractorRepository) Create(ctx context.Context, contractor *model.Contractor) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.contractors[contractor.ID] = contractor
	return nil
}

func (r *InMemoryContractorRepository) FindByID(ctx context.Context, id string) (*model.Contractor, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	contractor, exists := r.contractors[id]
	if !exists {
		return nil, apperr.NotFound("contractor", id)
	}
	return contractor, nil
}

func (r *InMemoryContractorRepository) FindAll(ctx context.Context) ([]*model.Contractor, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var result []*model.Contractor
	for _, contractor := range r.contractors {
		result = append(result, contractor)
	}
	return result, nil
}

func (r *InMemoryContractorRepository) Update(ctx context.Context, contractor *model.Contractor) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	_, exists := r.contractors[contractor.ID]
	if !exists {
		return apperr.NotFound("contractor", contractor.ID)
	}
	r.contractors[contractor.ID] = contractor
	return nil
}

func (r *InMemoryContractorRepository) Delete(ctx context.Context, id string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	delete(r.contractors, id)
	return nil
}

// Conversation repository implementation
type InMemoryConversationRepository struct {
	conversations map[string]*model.Conversation
	mutex         sync.RWMutex
}

func NewInMemoryConversationRepository() *InMemoryConversationRepository {
	return &InMemoryConversationRepository{
		conversations: make(map[string]*model.Conversation),
	}
}

func (r *InMemoryConversationRepository) Create(ctx context.Context, conversation *model.Conversation) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.conversations[conversation.ID] = conversation
	return nil
}

func (r *InMemoryConversationRepository) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	conversation, exists := r.conversations[id]
	if !exists {
		return nil, apperr.NotFound("conversation", id)
	}
	return conversation, nil
}

func (r *InMemoryConversationRepository) FindByProjectID(ctx context.Context, projectID string) ([]*model.Conversation, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var result []*model.Conversation
	for _, conversation := range r.conversations {
		if conversation.ProjectID == projectID {
			result = append(result, conversation)
		}
	}
	return result, nil
}

func (r *InMemoryConversationRepository) FindActiveByUserID(ctx context.Context, userID string) ([]*model.Conversation, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var result []*model.Conversation
	for _, conversation := range r.conversations {
		if conversation.UserID == userID && conversation.Active {
			result = append(result, conversation)
		}
	}
	return result, nil
}

func (r *InMemoryConversationRepository) FindByProjectAndContractor(ctx context.Context, projectID, contractorID string) (*model.Conversation, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, conversation := range r.conversations {
		if conversation.ProjectID == projectID && conversation.ContractorID == contractorID {
			return conversation, nil
		}
	}
	return nil, apperr.NotFound("conversation", projectID+"/"+contractorID)
}

func (r *InMemoryConversationRepository) Update(ctx context.Context, conversation *model.Conversation) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	_, exists := r.conversations[conversation.ID]
	if !exists {
		return apperr.NotFound("conversation", conversation.ID)
	}
	r.conversations[conversation.ID] = conversation
	return nil
}

// Message repository implementation
type InMemoryMessageRepository struct {
	messages map[string]*model.Message
	mutex    sync.RWMutex
}

func NewInMemoryMessageRepository() *InMemoryMessageRepository {
	return &InMemoryMessageRepository{
		messages: make(map[string]*model.Message),
	}
}

func (r *InMemoryMessageRepository) Create(ctx context.Context, message *model.Message) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.messages[message.ID] = message
	return nil
}

func (r *InMemoryMessageRepository) FindByID(ctx context.Context, id string) (*model.Message, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	message, exists := r.messages[id]
	if !exists {
		return nil, apperr.NotFound("message", id)
	}
	return message, nil
}

func (r *InMemoryMessageRepository) FindByConversationID(ctx context.Context, conversationID string) ([]*model.Message, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var result []*model.Message
	for _, message := range r.messages {
		if message.ConversationID == conversationID {
			result = append(result, message)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *InMemoryMessageRepository) Update(ctx context.Context, message *model.Message) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	_, exists := r.messages[message.ID]
	if !exists {
		return apperr.NotFound("message", message.ID)
	}
	r.messages[message.ID] = message
	return nil
}

// Action repository implementation
type InMemoryActionRepository struct {
	actions map[string]*model.Action
	mutex   sync.RWMutex
}

func NewInMemoryActionRepository() *InMemoryActionRepository {
	return &InMemoryActionRepository{
		actions: make(map[string]*model.Action),
	}
}

func (r *InMemoryActionRepository) Create(ctx context.Context, action *model.Action) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.actions[action.ID] = action
	return nil
}

func (r *InMemoryActionRepository) FindByID(ctx context.Context, id string) (*model.Action, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	action, exists := r.actions[id]
	if !exists {
		return nil, apperr.NotFound("action", id)
	}
	return action, nil
}

func (r *InMemoryActionRepository) FindByMessageID(ctx context.Context, messageID string) (*model.Action, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, action := range r.actions {
		if action.MessageID == messageID {
			return action, nil
		}
	}
	return nil, apperr.NotFound("action", messageID)
}

func (r *InMemoryActionRepository) FindByConversationID(ctx context.Context, conversationID string) ([]*model.Action, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var result []*model.Action
	for _, action := range r.actions {
		if action.ConversationID == conversationID {
			result = append(result, action)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *InMemoryActionRepository) FindExecutedByKind(ctx context.Context, conversationID string, kind model.ActionKind) ([]*model.Action, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var result []*model.Action
	for _, action := range r.actions {
		if action.ConversationID == conversationID && action.Kind == kind && action.Status == model.StatusExecuted {
			result = append(result, action)
		}
	}
	return result, nil
}

func (r *InMemoryActionRepository) Update(ctx context.Context, action *model.Action) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	_, exists := r.actions[action.ID]
	if !exists {
		return apperr.NotFound("action", action.ID)
	}
	r.actions[action.ID] = action
	return nil
}

// Offer repository implementation. bySource enforces the global uniqueness of
// source message ids the same way the Postgres unique index does.
type InMemoryOfferRepository struct {
	offers   map[string]*model.Offer
	bySource map[string]string // source message id -> offer id
	mutex    sync.RWMutex
}

func NewInMemoryOfferRepository() *InMemoryOfferRepository {
	return &InMemoryOfferRepository{
		offers:   make(map[string]*model.Offer),
		bySource: make(map[string]string),
	}
}

func (r *InMemoryOfferRepository) Create(ctx context.Context, offer *model.Offer) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.bySource[offer.SourceMessageID]; exists {
		return apperr.Conflict("offer", offer.SourceMessageID, "offer already exists for source message")
	}
	r.offers[offer.ID] = offer
	r.bySource[offer.SourceMessageID] = offer.ID
	return nil
}

func (r *InMemoryOfferRepository) FindByID(ctx context.Context, id string) (*model.Offer, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	offer, exists := r.offers[id]
	if !exists {
		return nil, apperr.NotFound("offer", id)
	}
	return offer, nil
}

func (r *InMemoryOfferRepository) FindBySourceMessageID(ctx context.Context, sourceMessageID string) (*model.Offer, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	offerID, exists := r.bySource[sourceMessageID]
	if !exists {
		return nil, apperr.NotFound("offer", sourceMessageID)
	}
	return r.offers[offerID], nil
}

func (r *InMemoryOfferRepository) FindByConversationID(ctx context.Context, conversationID string) ([]*model.Offer, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var result []*model.Offer
	for _, offer := range r.offers {
		if offer.ConversationID == conversationID {
			result = append(result, offer)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *InMemoryOfferRepository) FindLatestByContractor(ctx context.Context, conversationID, contractorID string) (*model.Offer, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var latest *model.Offer
	for _, offer := range r.offers {
		if offer.ConversationID != conversationID || offer.ContractorID != contractorID {
			continue
		}
		if latest == nil || offer.CreatedAt.After(latest.CreatedAt) {
			latest = offer
		}
	}
	if latest == nil {
		return nil, apperr.NotFound("offer", contractorID)
	}
	return latest, nil
}

// Offer analysis repository implementation
type InMemoryOfferAnalysisRepository struct {
	analyses map[string]*model.OfferAnalysis
	mutex    sync.RWMutex
}

func NewInMemoryOfferAnalysisRepository() *InMemoryOfferAnalysisRepository {
	return &InMemoryOfferAnalysisRepository{
		analyses: make(map[string]*model.OfferAnalysis),
	}
}

func (r *InMemoryOfferAnalysisRepository) Create(ctx context.Context, analysis *model.OfferAnalysis) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.analyses[analysis.ID] = analysis
	return nil
}

func (r *InMemoryOfferAnalysisRepository) FindByID(ctx context.Context, id string) (*model.OfferAnalysis, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	analysis, exists := r.analyses[id]
	if !exists {
		return nil, apperr.NotFound("offer analysis", id)
	}
	return analysis, nil
}

func (r *InMemoryOfferAnalysisRepository) FindByConversationID(ctx context.Context, conversationID string) ([]*model.OfferAnalysis, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var result []*model.OfferAnalysis
	for _, analysis := range r.analyses {
		if analysis.ConversationID == conversationID {
			result = append(result, analysis)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// Processed email ledger implementation. Duplicate writes are deliberate
// no-ops: concurrent pollers recording the same message must not fail.
type InMemoryProcessedEmailRepository struct {
	records map[string]*model.ProcessedEmailRecord // keyed contractor|source
	mutex   sync.RWMutex
}

func NewInMemoryProcessedEmailRepository() *InMemoryProcessedEmailRepository {
	return &InMemoryProcessedEmailRepository{
		records: make(map[string]*model.ProcessedEmailRecord),
	}
}

func ledgerKey(contractorID, sourceMessageID string) string {
	return contractorID + "|" + sourceMessageID
}

func (r *InMemoryProcessedEmailRepository) Create(ctx context.Context, record *model.ProcessedEmailRecord) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := ledgerKey(record.ContractorID, record.SourceMessageID)
	if _, exists := r.records[key]; exists {
		return nil
	}
	r.records[key] = record
	return nil
}

func (r *InMemoryProcessedEmailRepository) Exists(ctx context.Context, contractorID, sourceMessageID string) (bool, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	_, exists := r.records[ledgerKey(contractorID, sourceMessageID)]
	return exists, nil
}

func (r *InMemoryProcessedEmailRepository) FindByConversationID(ctx context.Context, conversationID string) ([]*model.ProcessedEmailRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var result []*model.ProcessedEmailRecord
	for _, record := range r.records {
		if record.ConversationID == conversationID {
			result = append(result, record)
		}
	}
	return result, nil
}

// Generation cache implementation: a keyed blob store without eviction.
type InMemoryGenerationCacheRepository struct {
	blobs map[string][]byte
	mutex sync.RWMutex
}

func NewInMemoryGenerationCacheRepository() *InMemoryGenerationCacheRepository {
	return &InMemoryGenerationCacheRepository{
		blobs: make(map[string][]byte),
	}
}

func (r *InMemoryGenerationCacheRepository) Get(ctx context.Context, key string) ([]byte, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	blob, exists := r.blobs[key]
	if !exists {
		return nil, apperr.NotFound("cache entry", key)
	}
	return blob, nil
}

func (r *InMemoryGenerationCacheRepository) Put(ctx context.Context, key string, blob []byte) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.blobs[key] = blob
	return nil
}
