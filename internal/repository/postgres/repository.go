package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"renopilot/internal/apperr"
	"renopilot/internal/model"

	"github.com/lib/pq"
)

// isUniqueViolation reports whether err is a Postgres duplicate-key error.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

type PostgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (id, google_id, email, name, access_token, refresh_token, token_expiry, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (google_id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expiry = EXCLUDED.token_expiry,
			updated_at = NOW()`
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.GoogleID, user.Email, user.Name,
		user.AccessToken, user.RefreshToken, user.TokenExpiry,
		user.CreatedAt, user.UpdatedAt)
	return err
}

func (r *PostgresUserRepository) scanUser(row *sql.Row, id string) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(
		&user.ID, &user.GoogleID, &user.Email, &user.Name,
		&user.AccessToken, &user.RefreshToken, &user.TokenExpiry,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("user", id)
		}
		return nil, err
	}
	return user, nil
}

func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT id, google_id, email, name, access_token, refresh_token, token_expiry, created_at, updated_at FROM users WHERE id = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id), id)
}

func (r *PostgresUserRepository) FindByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	query := `SELECT id, google_id, email, name, access_token, refresh_token, token_expiry, created_at, updated_at FROM users WHERE google_id = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, googleID), googleID)
}

func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT id, google_id, email, name, access_token, refresh_token, token_expiry, created_at, updated_at FROM users WHERE email = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, email), email)
}

func (r *PostgresUserRepository) FindAll(ctx context.Context) ([]*model.User, error) {
	query := `SELECT id, google_id, email, name, access_token, refresh_token, token_expiry, created_at, updated_at FROM users`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user := &model.User{}
		if err := rows.Scan(
			&user.ID, &user.GoogleID, &user.Email, &user.Name,
			&user.AccessToken, &user.RefreshToken, &user.TokenExpiry,
			&user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *PostgresUserRepository) Update(ctx context.Context, user *model.User) error {
	query := `
		UPDATE users SET google_id=$1, email=$2, name=$3, access_token=$4,
		refresh_token=$5, token_expiry=$6, updated_at=NOW() WHERE id=$7`
	_, err := r.db.ExecContext(ctx, query,
		user.GoogleID, user.Email, user.Name,
		user.AccessToken, user.RefreshToken, user.TokenExpiry,
		user.ID)
	return err
}

func (r *PostgresUserRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM users WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// Postgres Project repository implementation
type PostgresProjectRepository struct {
	db *sql.DB
}

func NewPostgresProjectRepository(db *sql.DB) *PostgresProjectRepository {
	return &PostgresProjectRepository{db: db}
}

func (r *PostgresProjectRepository) Create(ctx context.Context, project *model.Project) error {
	query := `
		INSERT INTO projects (id, user_id, title, address, description, budget_limit, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, query,
		project.ID, project.UserID, project.Title, project.Address,
		project.Description, project.BudgetLimit, project.Currency,
		project.CreatedAt, project.UpdatedAt)
	return err
}

func (r *PostgresProjectRepository) FindByID(ctx context.Context, id string) (*model.Project, error) {
	query := `SELECT id, user_id, title, address, description, budget_limit, currency, created_at, updated_at FROM projects WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	project := &model.Project{}
	err := row.Scan(
		&project.ID, &project.UserID, &project.Title, &project.Address,
		&project.Description, &project.BudgetLimit, &project.Currency,
		&project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("project", id)
		}
		return nil, err
	}
	return project, nil
}

func (r *PostgresProjectRepository) FindByUserID(ctx context.Context, userID string) ([]*model.Project, error) {
	query := `SELECT id, user_id, title, address, description, budget_limit, currency, created_at, updated_at FROM projects WHERE user_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*model.Project
	for rows.Next() {
		project := &model.Project{}
		if err := rows.Scan(
			&project.ID, &project.UserID, &project.Title, &project.Address,
			&project.Description, &project.BudgetLimit, &project.Currency,
			&project.CreatedAt, &project.UpdatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

func (r *PostgresProjectRepository) Update(ctx context.Context, project *model.Project) error {
	query := `
		UPDATE projects SET title=$1, address=$2, description=$3, budget_limit=$4, currency=$5, updated_at=NOW() WHERE id=$6`
	_, err := r.db.ExecContext(ctx, query,
		project.Title, project.Address, project.Description,
		project.BudgetLimit, project.Currency, project.ID)
	return err
}

func (r *PostgresProjectRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM projects WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// Postgres Contractor repository implementation
type PostgresContractorRepository struct {
	db *sql.DB
}

func NewPostgresContractorRepository(db *sql.DB) *PostgresContractorRepository {
	return &PostgresContractorRepository{db: db}
}

func (r *PostgresContractorRepository) Create(ctx context.Context, contractor *model.Contractor) error {
	query := `
		INSERT INTO contractors (id, name, email, trade, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, query,
		contractor.ID, contractor.Name, contractor.Email, contractor.Trade,
		contractor.Notes, contractor.CreatedAt, contractor.UpdatedAt)
	return err
}

func (r *PostgresContractorRepository) FindByID(ctx context.Context, id string) (*model.Contractor, error) {
	query := `SELECT id, name, email, trade, notes, created_at, updated_at FROM contractors WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	contractor := &model.Contractor{}
	err := row.Scan(
		&contractor.ID, &contractor.Name, &contractor.Email, &contractor.Trade,
		&contractor.Notes, &contractor.CreatedAt, &contractor.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("contractor", id)
		}
		return nil, err
	}
	return contractor, nil
}

func (r *PostgresContractorRepository) FindAll(ctx context.Context) ([]*model.Contractor, error) {
	query := `SELECT id, name, email, trade, notes, created_at, updated_at FROM contractors ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contractors []*model.Contractor
	for rows.Next() {
		contractor := &model.Contractor{}
		if err := rows.Scan(
			&contractor.ID, &contractor.Name, &contractor.Email, &contractor.Trade,
			&contractor.Notes, &contractor.CreatedAt, &contractor.UpdatedAt); err != nil {
			return nil, err
		}
		contractors = append(contractors, contractor)
	}
	return contractors, rows.Err()
}

func (r *PostgresContractorRepository) Update(ctx context.Context, contractor *model.Contractor) error {
	query := `UPDATE contractors SET name=$1, email=$2, trade=$3, notes=$4, updated_at=NOW() WHERE id=$5`
	_, err := r.db.ExecContext(ctx, query,
		contractor.Name, contractor.Email, contractor.Trade, contractor.Notes, contractor.ID)
	return err
}

func (r *PostgresContractorRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM contractors WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// Postgres Conversation repository implementation
type PostgresConversationRepository struct {
	db *sql.DB
}

func NewPostgresConversationRepository(db *sql.DB) *PostgresConversationRepository {
	return &PostgresConversationRepository{db: db}
}

func (r *PostgresConversationRepository) Create(ctx context.Context, conversation *model.Conversation) error {
	query := `
		INSERT INTO conversations (id, user_id, project_id, contractor_id, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, query,
		conversation.ID, conversation.UserID, conversation.ProjectID,
		conversation.ContractorID, conversation.Active,
		conversation.CreatedAt, conversation.UpdatedAt)
	return err
}

func (r *PostgresConversationRepository) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	query := `SELECT id, user_id, project_id, contractor_id, active, created_at, updated_at FROM conversations WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	conversation := &model.Conversation{}
	err := row.Scan(
		&conversation.ID, &conversation.UserID, &conversation.ProjectID,
		&conversation.ContractorID, &conversation.Active,
		&conversation.CreatedAt, &conversation.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("conversation", id)
		}
		return nil, err
	}
	return conversation, nil
}

func (r *PostgresConversationRepository) queryConversations(ctx context.Context, query string, args ...interface{}) ([]*model.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []*model.Conversation
	for rows.Next() {
		conversation := &model.Conversation{}
		if err := rows.Scan(
			&conversation.ID, &conversation.UserID, &conversation.ProjectID,
			&conversation.ContractorID, &conversation.Active,
			&conversation.CreatedAt, &conversation.UpdatedAt); err != nil {
			return nil, err
		}
		conversations = append(conversations, conversation)
	}
	return conversations, rows.Err()
}

func (r *PostgresConversationRepository) FindByProjectID(ctx context.Context, projectID string) ([]*model.Conversation, error) {
	query := `SELECT id, user_id, project_id, contractor_id, active, created_at, updated_at FROM conversations WHERE project_id = $1 ORDER BY created_at`
	return r.queryConversations(ctx, query, projectID)
}

func (r *PostgresConversationRepository) FindActiveByUserID(ctx context.Context, userID string) ([]*model.Conversation, error) {
	query := `SELECT id, user_id, project_id, contractor_id, active, created_at, updated_at FROM conversations WHERE user_id = $1 AND active = TRUE ORDER BY created_at`
	return r.queryConversations(ctx, query, userID)
}

func (r *PostgresConversationRepository) FindByProjectAndContractor(ctx context.Context, projectID, contractorID string) (*model.Conversation, error) {
	query := `SELECT id, user_id, project_id, contractor_id, active, created_at, updated_at FROM conversations WHERE project_id = $1 AND contractor_id = $2`
	row := r.db.QueryRowContext(ctx, query, projectID, contractorID)

	conversation := &model.Conversation{}
	err := row.Scan(
		&conversation.ID, &conversation.UserID, &conversation.ProjectID,
		&conversation.ContractorID, &conversation.Active,
		&conversation.CreatedAt, &conversation.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("conversation", projectID+"/"+contractorID)
		}
		return nil, err
	}
	return conversation, nil
}

func (r *PostgresConversationRepository) Update(ctx context.Context, conversation *model.Conversation) error {
	query := `UPDATE conversations SET active=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.db.ExecContext(ctx, query, conversation.Active, conversation.ID)
	return err
}

// Postgres Message repository implementation
type PostgresMessageRepository struct {
	db *sql.DB
}

func NewPostgresMessageRepository(db *sql.DB) *PostgresMessageRepository {
	return &PostgresMessageRepository{db: db}
}

func (r *PostgresMessageRepository) Create(ctx context.Context, message *model.Message) error {
	query := `
		INSERT INTO messages (id, conversation_id, sender, kind, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, query,
		message.ID, message.ConversationID, message.Sender, message.Kind,
		message.Content, message.CreatedAt)
	return err
}

func (r *PostgresMessageRepository) FindByID(ctx context.Context, id string) (*model.Message, error) {
	query := `SELECT id, conversation_id, sender, kind, content, created_at FROM messages WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	message := &model.Message{}
	err := row.Scan(
		&message.ID, &message.ConversationID, &message.Sender, &message.Kind,
		&message.Content, &message.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("message", id)
		}
		return nil, err
	}
	return message, nil
}

func (r *PostgresMessageRepository) FindByConversationID(ctx context.Context, conversationID string) ([]*model.Message, error) {
	query := `SELECT id, conversation_id, sender, kind, content, created_at FROM messages WHERE conversation_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*model.Message
	for rows.Next() {
		message := &model.Message{}
		if err := rows.Scan(
			&message.ID, &message.ConversationID, &message.Sender, &message.Kind,
			&message.Content, &message.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, rows.Err()
}

func (r *PostgresMessageRepository) Update(ctx context.Context, message *model.Message) error {
	query := `UPDATE messages SET content=$1 WHERE id=$2`
	_, err := r.db.ExecContext(ctx, query, message.Content, message.ID)
	return err
}

// Postgres Action repository implementation
type PostgresActionRepository struct {
	db *sql.DB
}

func NewPostgresActionRepository(db *sql.DB) *PostgresActionRepository {
	return &PostgresActionRepository{db: db}
}

const actionColumns = `id, message_id, conversation_id, kind, status, payload, summary, result, created_at, updated_at`

func (r *PostgresActionRepository) Create(ctx context.Context, action *model.Action) error {
	query := `
		INSERT INTO actions (` + actionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(ctx, query,
		action.ID, action.MessageID, action.ConversationID, action.Kind,
		action.Status, action.Payload, action.Summary, action.Result,
		action.CreatedAt, action.UpdatedAt)
	return err
}

func scanAction(row *sql.Row, id string) (*model.Action, error) {
	action := &model.Action{}
	err := row.Scan(
		&action.ID, &action.MessageID, &action.ConversationID, &action.Kind,
		&action.Status, &action.Payload, &action.Summary, &action.Result,
		&action.CreatedAt, &action.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("action", id)
		}
		return nil, err
	}
	return action, nil
}

func (r *PostgresActionRepository) FindByID(ctx context.Context, id string) (*model.Action, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE id = $1`
	return scanAction(r.db.QueryRowContext(ctx, query, id), id)
}

func (r *PostgresActionRepository) FindByMessageID(ctx context.Context, messageID string) (*model.Action, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE message_id = $1`
	return scanAction(r.db.QueryRowContext(ctx, query, messageID), messageID)
}

func (r *PostgresActionRepository) queryActions(ctx context.Context, query string, args ...interface{}) ([]*model.Action, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*model.Action
	for rows.Next() {
		action := &model.Action{}
		if err := rows.Scan(
			&action.ID, &action.MessageID, &action.ConversationID, &action.Kind,
			&action.Status, &action.Payload, &action.Summary, &action.Result,
			&action.CreatedAt, &action.UpdatedAt); err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	return actions, rows.Err()
}

func (r *PostgresActionRepository) FindByConversationID(ctx context.Context, conversationID string) ([]*model.Action, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE conversation_id = $1 ORDER BY created_at`
	return r.queryActions(ctx, query, conversationID)
}

func (r *PostgresActionRepository) FindExecutedByKind(ctx context.Context, conversationID string, kind model.ActionKind) ([]*model.Action, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE conversation_id = $1 AND kind = $2 AND status = 'executed' ORDER BY created_at`
	return r.queryActions(ctx, query, conversationID, string(kind))
}

func (r *PostgresActionRepository) Update(ctx context.Context, action *model.Action) error {
	query := `UPDATE actions SET status=$1, payload=$2, summary=$3, result=$4, updated_at=NOW() WHERE id=$5`
	_, err := r.db.ExecContext(ctx, query,
		action.Status, action.Payload, action.Summary, action.Result, action.ID)
	return err
}

// Postgres Offer repository implementation. The unique index on
// source_message_id backs the at-most-once extraction guarantee.
type PostgresOfferRepository struct {
	db *sql.DB
}

func NewPostgresOfferRepository(db *sql.DB) *PostgresOfferRepository {
	return &PostgresOfferRepository{db: db}
}

const offerColumns = `id, conversation_id, contractor_id, source_message_id, total_price, currency,
	timeline_start, timeline_end, timeline_duration_days, scope_text, payment_terms, warranty,
	has_insurance, has_cost_breakdown, risk_score, raw_extract, created_at`

func (r *PostgresOfferRepository) Create(ctx context.Context, offer *model.Offer) error {
	query := `
		INSERT INTO offers (` + offerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err := r.db.ExecContext(ctx, query,
		offer.ID, offer.ConversationID, offer.ContractorID, offer.SourceMessageID,
		offer.TotalPrice, offer.Currency, offer.TimelineStart, offer.TimelineEnd,
		offer.TimelineDurationDays, offer.ScopeText, offer.PaymentTerms, offer.Warranty,
		offer.HasInsurance, offer.HasCostBreakdown, offer.RiskScore, offer.RawExtract,
		offer.CreatedAt)
	if isUniqueViolation(err) {
		return apperr.Conflict("offer", offer.SourceMessageID, "offer already exists for source message")
	}
	return err
}

func scanOffer(row *sql.Row, id string) (*model.Offer, error) {
	offer := &model.Offer{}
	err := row.Scan(
		&offer.ID, &offer.ConversationID, &offer.ContractorID, &offer.SourceMessageID,
		&offer.TotalPrice, &offer.Currency, &offer.TimelineStart, &offer.TimelineEnd,
		&offer.TimelineDurationDays, &offer.ScopeText, &offer.PaymentTerms, &offer.Warranty,
		&offer.HasInsurance, &offer.HasCostBreakdown, &offer.RiskScore, &offer.RawExtract,
		&offer.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("offer", id)
		}
		return nil, err
	}
	return offer, nil
}

func (r *PostgresOfferRepository) FindByID(ctx context.Context, id string) (*model.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1`
	return scanOffer(r.db.QueryRowContext(ctx, query, id), id)
}

func (r *PostgresOfferRepository) FindBySourceMessageID(ctx context.Context, sourceMessageID string) (*model.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE source_message_id = $1`
	return scanOffer(r.db.QueryRowContext(ctx, query, sourceMessageID), sourceMessageID)
}

func (r *PostgresOfferRepository) FindByConversationID(ctx context.Context, conversationID string) ([]*model.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE conversation_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offers []*model.Offer
	for rows.Next() {
		offer := &model.Offer{}
		if err := rows.Scan(
			&offer.ID, &offer.ConversationID, &offer.ContractorID, &offer.SourceMessageID,
			&offer.TotalPrice, &offer.Currency, &offer.TimelineStart, &offer.TimelineEnd,
			&offer.TimelineDurationDays, &offer.ScopeText, &offer.PaymentTerms, &offer.Warranty,
			&offer.HasInsurance, &offer.HasCostBreakdown, &offer.RiskScore, &offer.RawExtract,
			&offer.CreatedAt); err != nil {
			return nil, err
		}
		offers = append(offers, offer)
	}
	return offers, rows.Err()
}

func (r *PostgresOfferRepository) FindLatestByContractor(ctx context.Context, conversationID, contractorID string) (*model.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE conversation_id = $1 AND contractor_id = $2 ORDER BY created_at DESC LIMIT 1`
	return scanOffer(r.db.QueryRowContext(ctx, query, conversationID, contractorID), contractorID)
}

// Postgres OfferAnalysis repository implementation
type PostgresOfferAnalysisRepository struct {
	db *sql.DB
}

func NewPostgresOfferAnalysisRepository(db *sql.DB) *PostgresOfferAnalysisRepository {
	return &PostgresOfferAnalysisRepository{db: db}
}

func (r *PostgresOfferAnalysisRepository) Create(ctx context.Context, analysis *model.OfferAnalysis) error {
	query := `
		INSERT INTO offer_analyses (id, conversation_id, primary_offer_id, type, compared_offer_ids, report, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, query,
		analysis.ID, analysis.ConversationID, analysis.PrimaryOfferID,
		analysis.Type, pq.Array(analysis.ComparedOfferIDs), analysis.Report,
		analysis.CreatedAt)
	return err
}

func (r *PostgresOfferAnalysisRepository) FindByID(ctx context.Context, id string) (*model.OfferAnalysis, error) {
	query := `SELECT id, conversation_id, primary_offer_id, type, compared_offer_ids, report, created_at FROM offer_analyses WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	analysis := &model.OfferAnalysis{}
	err := row.Scan(
		&analysis.ID, &analysis.ConversationID, &analysis.PrimaryOfferID,
		&analysis.Type, pq.Array(&analysis.ComparedOfferIDs), &analysis.Report,
		&analysis.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("offer analysis", id)
		}
		return nil, err
	}
	return analysis, nil
}

func (r *PostgresOfferAnalysisRepository) FindByConversationID(ctx context.Context, conversationID string) ([]*model.OfferAnalysis, error) {
	query := `SELECT id, conversation_id, primary_offer_id, type, compared_offer_ids, report, created_at FROM offer_analyses WHERE conversation_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var analyses []*model.OfferAnalysis
	for rows.Next() {
		analysis := &model.OfferAnalysis{}
		if err := rows.Scan(
			&analysis.ID, &analysis.ConversationID, &analysis.PrimaryOfferID,
			&analysis.Type, pq.Array(&analysis.ComparedOfferIDs), &analysis.Report,
			&analysis.CreatedAt); err != nil {
			return nil, err
		}
		analyses = append(analyses, analysis)
	}
	return analyses, rows.Err()
}

// Postgres ProcessedEmail repository implementation. ON CONFLICT DO NOTHING
// makes duplicate ledger writes a benign no-op under concurrent pollers.
type PostgresProcessedEmailRepository struct {
	db *sql.DB
}

func NewPostgresProcessedEmailRepository(db *sql.DB) *PostgresProcessedEmailRepository {
	return &PostgresProcessedEmailRepository{db: db}
}

func (r *PostgresProcessedEmailRepository) Create(ctx context.Context, record *model.ProcessedEmailRecord) error {
	query := `
		INSERT INTO processed_emails (id, user_id, conversation_id, contractor_id, source_message_id, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (contractor_id, source_message_id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.UserID, record.ConversationID, record.ContractorID,
		record.SourceMessageID, record.ProcessedAt)
	return err
}

func (r *PostgresProcessedEmailRepository) Exists(ctx context.Context, contractorID, sourceMessageID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM processed_emails WHERE contractor_id = $1 AND source_message_id = $2)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, contractorID, sourceMessageID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PostgresProcessedEmailRepository) FindByConversationID(ctx context.Context, conversationID string) ([]*model.ProcessedEmailRecord, error) {
	query := `SELECT id, user_id, conversation_id, contractor_id, source_message_id, processed_at FROM processed_emails WHERE conversation_id = $1`
	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*model.ProcessedEmailRecord
	for rows.Next() {
		record := &model.ProcessedEmailRecord{}
		if err := rows.Scan(
			&record.ID, &record.UserID, &record.ConversationID, &record.ContractorID,
			&record.SourceMessageID, &record.ProcessedAt); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Postgres GenerationCache repository implementation: keyed blob store, no
// eviction, last write wins (entries are content-addressed so writes race
// only on identical content).
type PostgresGenerationCacheRepository struct {
	db *sql.DB
}

func NewPostgresGenerationCacheRepository(db *sql.DB) *PostgresGenerationCacheRepository {
	return &PostgresGenerationCacheRepository{db: db}
}

func (r *PostgresGenerationCacheRepository) Get(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT blob FROM generation_cache WHERE key = $1`
	var blob []byte
	err := r.db.QueryRowContext(ctx, query, key).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("cache entry", key)
		}
		return nil, err
	}
	return blob, nil
}

func (r *PostgresGenerationCacheRepository) Put(ctx context.Context, key string, blob []byte) error {
	query := `
		INSERT INTO generation_cache (key, blob, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, key, blob)
	return err
}

// InitializeDatabase creates the necessary tables
func InitializeDatabase(db *sql.DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(255) PRIMARY KEY,
			google_id VARCHAR(255) UNIQUE NOT NULL,
			email VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL,
			access_token TEXT,
			refresh_token TEXT,
			token_expiry TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS projects (
			id VARCHAR(255) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			title VARCHAR(255) NOT NULL,
			address TEXT,
			description TEXT,
			budget_limit NUMERIC(12,2) DEFAULT 0,
			currency VARCHAR(8) DEFAULT 'EUR',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS contractors (
			id VARCHAR(255) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			email VARCHAR(255) NOT NULL,
			trade VARCHAR(255),
			notes TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id VARCHAR(255) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			project_id VARCHAR(255) NOT NULL,
			contractor_id VARCHAR(255) NOT NULL,
			active BOOLEAN DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id VARCHAR(255) PRIMARY KEY,
			conversation_id VARCHAR(255) NOT NULL,
			sender VARCHAR(16) NOT NULL,
			kind VARCHAR(32) NOT NULL,
			content TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS actions (
			id VARCHAR(255) PRIMARY KEY,
			message_id VARCHAR(255) UNIQUE NOT NULL,
			conversation_id VARCHAR(255) NOT NULL,
			kind VARCHAR(32) NOT NULL,
			status VARCHAR(16) NOT NULL,
			payload TEXT,
			summary TEXT,
			result TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS offers (
			id VARCHAR(255) PRIMARY KEY,
			conversation_id VARCHAR(255) NOT NULL,
			contractor_id VARCHAR(255) NOT NULL,
			source_message_id VARCHAR(255) UNIQUE NOT NULL,
			total_price NUMERIC(12,2) DEFAULT 0,
			currency VARCHAR(8),
			timeline_start VARCHAR(32),
			timeline_end VARCHAR(32),
			timeline_duration_days INTEGER DEFAULT 0,
			scope_text TEXT,
			payment_terms TEXT,
			warranty TEXT,
			has_insurance BOOLEAN DEFAULT FALSE,
			has_cost_breakdown BOOLEAN DEFAULT FALSE,
			risk_score INTEGER DEFAULT 0,
			raw_extract TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_offers_contractor_conversation
			ON offers (contractor_id, conversation_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS offer_analyses (
			id VARCHAR(255) PRIMARY KEY,
			conversation_id VARCHAR(255) NOT NULL,
			primary_offer_id VARCHAR(255) NOT NULL,
			type VARCHAR(16) NOT NULL,
			compared_offer_ids TEXT[],
			report TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS processed_emails (
			id VARCHAR(255) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			conversation_id VARCHAR(255) NOT NULL,
			contractor_id VARCHAR(255) NOT NULL,
			source_message_id VARCHAR(255) NOT NULL,
			processed_at TIMESTAMP NOT NULL,
			UNIQUE (contractor_id, source_message_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_processed_emails_contractor_conversation
			ON processed_emails (contractor_id, conversation_id)`,
		`CREATE TABLE IF NOT EXISTS generation_cache (
			key VARCHAR(128) PRIMARY KEY,
			blob BYTEA NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
	}

	for _, table := range tables {
		_, err := db.Exec(table)
		if err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}
