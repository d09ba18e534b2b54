package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"taskhub/internal/models"
)

const (
	usersCollection         = "users"
	verificationsCollection = "verifications"
	workspacesCollection    = "workspaces"
)

// ConnectMongo dials the server and checks it answers.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// EnsureMongoIndexes creates the indexes the repositories rely on: unique
// email, unique (userId, purpose), and a TTL index that expires tokens.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	if _, err := db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("users email index: %w", err)
	}

	if _, err := db.Collection(verificationsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "purpose", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}); err != nil {
		return fmt.Errorf("verifications indexes: %w", err)
	}

	if _, err := db.Collection(workspacesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "members.user", Value: 1}},
	}); err != nil {
		return fmt.Errorf("workspaces members index: %w", err)
	}
	return nil
}

// parseObjectID maps ids that cannot exist in mongo to ErrNotFound.
func parseObjectID(id string) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.NilObjectID, ErrNotFound
	}
	return oid, nil
}

type userDocument struct {
	ID              bson.ObjectID `bson:"_id,omitempty"`
	Name            string        `bson:"name"`
	Email           string        `bson:"email"`
	Password        string        `bson:"password"`
	IsEmailVerified bool          `bson:"isEmailVerified"`
	LastLogin       *time.Time    `bson:"lastLogin,omitempty"`
	CreatedAt       time.Time     `bson:"createdAt"`
	UpdatedAt       time.Time     `bson:"updatedAt"`
}

func (d *userDocument) toModel() *models.User {
	return &models.User{
		ID:              d.ID.Hex(),
		Name:            d.Name,
		Email:           d.Email,
		PasswordHash:    d.Password,
		IsEmailVerified: d.IsEmailVerified,
		LastLogin:       d.LastLogin,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

type mongoUserRepository struct {
	coll *mongo.Collection
}

func NewMongoUserRepository(db *mongo.Database) UserRepository {
	return &mongoUserRepository{coll: db.Collection(usersCollection)}
}

func (r *mongoUserRepository) Create(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	doc := userDocument{
		ID:              bson.NewObjectID(),
		Name:            user.Name,
		Email:           user.Email,
		Password:        user.PasswordHash,
		IsEmailVerified: user.IsEmailVerified,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("user create: %w", err)
	}
	user.ID = doc.ID.Hex()
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (r *mongoUserRepository) findOne(ctx context.Context, filter bson.D) (*models.User, error) {
	var doc userDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("user find: %w", err)
	}
	return doc.toModel(), nil
}

func (r *mongoUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	return r.findOne(ctx, bson.D{{Key: "_id", Value: oid}})
}

func (r *mongoUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

func (r *mongoUserRepository) set(ctx context.Context, id string, fields bson.D) error {
	oid, err := parseObjectID(id)
	if err != nil {
		return err
	}
	fields = append(fields, bson.E{Key: "updatedAt", Value: time.Now().UTC()})
	res, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: oid}}, bson.D{{Key: "$set", Value: fields}})
	if err != nil {
		return fmt.Errorf("user update: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoUserRepository) MarkEmailVerified(ctx context.Context, id string) error {
	return r.set(ctx, id, bson.D{{Key: "isEmailVerified", Value: true}})
}

func (r *mongoUserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.set(ctx, id, bson.D{{Key: "lastLogin", Value: at}})
}

func (r *mongoUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.set(ctx, id, bson.D{{Key: "password", Value: passwordHash}})
}

type verificationDocument struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	UserID    bson.ObjectID `bson:"userId"`
	Token     string        `bson:"token"`
	Purpose   string        `bson:"purpose"`
	ExpiresAt time.Time     `bson:"expiresAt"`
	CreatedAt time.Time     `bson:"createdAt"`
}

func (d *verificationDocument) toModel() *models.VerificationToken {
	return &models.VerificationToken{
		ID:        d.ID.Hex(),
		UserID:    d.UserID.Hex(),
		Token:     d.Token,
		Purpose:   models.Purpose(d.Purpose),
		ExpiresAt: d.ExpiresAt,
		CreatedAt: d.CreatedAt,
	}
}

type mongoVerificationRepository struct {
	coll *mongo.Collection
}

func NewMongoVerificationRepository(db *mongo.Database) VerificationRepository {
	return &mongoVerificationRepository{coll: db.Collection(verificationsCollection)}
}

func (r *mongoVerificationRepository) Save(ctx context.Context, t *models.VerificationToken) error {
	uid, err := parseObjectID(t.UserID)
	if err != nil {
		return fmt.Errorf("verification save: %w", err)
	}
	now := time.Now().UTC()
	filter := bson.D{{Key: "userId", Value: uid}, {Key: "purpose", Value: string(t.Purpose)}}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "token", Value: t.Token},
		{Key: "expiresAt", Value: t.ExpiresAt},
		{Key: "createdAt", Value: now},
	}}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc verificationDocument
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return fmt.Errorf("verification save: %w", err)
	}
	t.ID = doc.ID.Hex()
	t.CreatedAt = now
	return nil
}

func (r *mongoVerificationRepository) findOne(ctx context.Context, filter bson.D) (*models.VerificationToken, error) {
	var doc verificationDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("verification find: %w", err)
	}
	return doc.toModel(), nil
}

func (r *mongoVerificationRepository) FindByUserAndPurpose(ctx context.Context, userID string, purpose models.Purpose) (*models.VerificationToken, error) {
	uid, err := parseObjectID(userID)
	if err != nil {
		return nil, err
	}
	return r.findOne(ctx, bson.D{{Key: "userId", Value: uid}, {Key: "purpose", Value: string(purpose)}})
}

func (r *mongoVerificationRepository) FindByToken(ctx context.Context, userID, token string) (*models.VerificationToken, error) {
	uid, err := parseObjectID(userID)
	if err != nil {
		return nil, err
	}
	return r.findOne(ctx, bson.D{{Key: "userId", Value: uid}, {Key: "token", Value: token}})
}

func (r *mongoVerificationRepository) Delete(ctx context.Context, id string) error {
	oid, err := parseObjectID(id)
	if err != nil {
		return err
	}
	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return fmt.Errorf("verification delete: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoVerificationRepository) DeleteByUserAndPurpose(ctx context.Context, userID string, purpose models.Purpose) error {
	uid, err := parseObjectID(userID)
	if err != nil {
		return nil
	}
	if _, err := r.coll.DeleteMany(ctx, bson.D{{Key: "userId", Value: uid}, {Key: "purpose", Value: string(purpose)}}); err != nil {
		return fmt.Errorf("verification delete by purpose: %w", err)
	}
	return nil
}

// PurgeExpired is normally redundant with the TTL index, whose monitor runs
// roughly once a minute; the janitor calls it anyway to tighten that window.
func (r *mongoVerificationRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.D{{Key: "expiresAt", Value: bson.D{{Key: "$lte", Value: before}}}})
	if err != nil {
		return 0, fmt.Errorf("verification purge: %w", err)
	}
	return res.DeletedCount, nil
}

type memberDocument struct {
	User     bson.ObjectID `bson:"user"`
	Role     string        `bson:"role"`
	JoinedAt time.Time     `bson:"joinedAt"`
}

type workspaceDocument struct {
	ID          bson.ObjectID    `bson:"_id,omitempty"`
	Name        string           `bson:"name"`
	Description string           `bson:"description"`
	Color       string           `bson:"color"`
	Owner       bson.ObjectID    `bson:"owner"`
	Members     []memberDocument `bson:"members"`
	CreatedAt   time.Time        `bson:"createdAt"`
	UpdatedAt   time.Time        `bson:"updatedAt"`
}

func newWorkspaceDocument(w *models.Workspace) (*workspaceDocument, error) {
	owner, err := parseObjectID(w.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("workspace owner: %w", err)
	}
	doc := &workspaceDocument{
		Name:        w.Name,
		Description: w.Description,
		Color:       w.Color,
		Owner:       owner,
		Members:     make([]memberDocument, 0, len(w.Members)),
	}
	for _, m := range w.Members {
		uid, err := parseObjectID(m.UserID)
		if err != nil {
			return nil, fmt.Errorf("workspace member: %w", err)
		}
		doc.Members = append(doc.Members, memberDocument{User: uid, Role: string(m.Role), JoinedAt: m.JoinedAt})
	}
	return doc, nil
}

func (d *workspaceDocument) toModel() *models.Workspace {
	w := &models.Workspace{
		ID:          d.ID.Hex(),
		Name:        d.Name,
		Description: d.Description,
		Color:       d.Color,
		OwnerID:     d.Owner.Hex(),
		Members:     make([]models.WorkspaceMember, 0, len(d.Members)),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	for _, m := range d.Members {
		w.Members = append(w.Members, models.WorkspaceMember{
			UserID:   m.User.Hex(),
			Role:     models.WorkspaceRole(m.Role),
			JoinedAt: m.JoinedAt,
		})
	}
	return w
}

type mongoWorkspaceRepository struct {
	coll *mongo.Collection
}

func NewMongoWorkspaceRepository(db *mongo.Database) WorkspaceRepository {
	return &mongoWorkspaceRepository{coll: db.Collection(workspacesCollection)}
}

func (r *mongoWorkspaceRepository) Create(ctx context.Context, w *models.Workspace) error {
	doc, err := newWorkspaceDocument(w)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	doc.ID = bson.NewObjectID()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("workspace create: %w", err)
	}
	w.ID = doc.ID.Hex()
	w.CreatedAt = now
	w.UpdatedAt = now
	return nil
}

func (r *mongoWorkspaceRepository) GetByID(ctx context.Context, id string) (*models.Workspace, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	var doc workspaceDocument
	if err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("workspace by id: %w", err)
	}
	return doc.toModel(), nil
}

func (r *mongoWorkspaceRepository) ListByMember(ctx context.Context, userID string) ([]*models.Workspace, error) {
	list := []*models.Workspace{}
	uid, err := parseObjectID(userID)
	if err != nil {
		return list, nil
	}
	cur, err := r.coll.Find(ctx,
		bson.D{{Key: "members.user", Value: uid}},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("workspace list: %w", err)
	}
	var docs []workspaceDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("workspace list: %w", err)
	}
	for i := range docs {
		list = append(list, docs[i].toModel())
	}
	return list, nil
}

func (r *mongoWorkspaceRepository) Update(ctx context.Context, w *models.Workspace) error {
	oid, err := parseObjectID(w.ID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "name", Value: w.Name},
			{Key: "description", Value: w.Description},
			{Key: "color", Value: w.Color},
			{Key: "updatedAt", Value: now},
		}}},
	)
	if err != nil {
		return fmt.Errorf("workspace update: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	w.UpdatedAt = now
	return nil
}
