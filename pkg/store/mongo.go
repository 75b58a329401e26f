package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dotsetgreg/masquerade/pkg/profiles"
)

// MongoOptions names the database and collections. Empty collection names
// fall back to "profiles", "defaults" and "authors".
type MongoOptions struct {
	URI                string
	Database           string
	ProfilesCollection string
	DefaultsCollection string
	AuthorsCollection  string
}

type profileID struct {
	Name   string `bson:"name"`
	UserID string `bson:"user_id"`
}

type profileDoc struct {
	ID          profileID `bson:"_id"`
	DisplayName *string   `bson:"display_name"`
	Avatar      *string   `bson:"avatar"`
	Colour      *string   `bson:"colour"`
}

type defaultID struct {
	Scope   string `bson:"scope"`
	UserID  string `bson:"user_id"`
	ScopeID string `bson:"scope_id"`
}

type defaultDoc struct {
	ID   defaultID `bson:"_id"`
	Name string    `bson:"name"`
}

type authorDoc struct {
	ID     string `bson:"_id"`
	UserID string `bson:"user_id"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type mongoBackend struct {
	client   *mongo.Client
	profiles *mongo.Collection
	defaults *mongo.Collection
	authors  *mongo.Collection
}

// NewMongoBackend connects and pings the deployment at opts.URI.
func NewMongoBackend(ctx context.Context, opts MongoOptions) (Backend, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opts.URI).SetAppName("masquerade"))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(opts.Database)
	coll := func(name, fallback string) *mongo.Collection {
		if name == "" {
			name = fallback
		}
		return db.Collection(name)
	}
	return &mongoBackend{
		client:   client,
		profiles: coll(opts.ProfilesCollection, "profiles"),
		defaults: coll(opts.DefaultsCollection, "defaults"),
		authors:  coll(opts.AuthorsCollection, "authors"),
	}, nil
}

func (b *mongoBackend) LoadProfiles(ctx context.Context) ([]profiles.Profile, error) {
	cur, err := b.profiles.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("find profiles: %w", err)
	}
	var docs []profileDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}
	out := make([]profiles.Profile, 0, len(docs))
	for _, d := range docs {
		out = append(out, profiles.Profile{
			UserID:      d.ID.UserID,
			Name:        d.ID.Name,
			DisplayName: deref(d.DisplayName),
			Avatar:      deref(d.Avatar),
			Colour:      deref(d.Colour),
		})
	}
	return out, nil
}

func (b *mongoBackend) LoadDefaults(ctx context.Context) (map[DefaultKey]string, error) {
	cur, err := b.defaults.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("find defaults: %w", err)
	}
	var docs []defaultDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode defaults: %w", err)
	}
	out := make(map[DefaultKey]string, len(docs))
	for _, d := range docs {
		out[DefaultKey{Scope: Scope(d.ID.Scope), UserID: d.ID.UserID, ScopeID: d.ID.ScopeID}] = d.Name
	}
	return out, nil
}

func (b *mongoBackend) UpsertProfile(ctx context.Context, p profiles.Profile) error {
	id := profileID{Name: p.Name, UserID: p.UserID}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "display_name", Value: optional(p.DisplayName)},
		{Key: "avatar", Value: optional(p.Avatar)},
		{Key: "colour", Value: optional(p.Colour)},
	}}}
	_, err := b.profiles.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, update, options.Update().SetUpsert(true))
	return err
}

func (b *mongoBackend) DeleteProfile(ctx context.Context, userID, name string) error {
	_, err := b.profiles.DeleteOne(ctx, bson.D{{Key: "_id", Value: profileID{Name: name, UserID: userID}}})
	return err
}

func mongoDefaultID(key DefaultKey) defaultID {
	return defaultID{Scope: string(key.Scope), UserID: key.UserID, ScopeID: key.ScopeID}
}

func (b *mongoBackend) UpsertDefault(ctx context.Context, key DefaultKey, name string) error {
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "name", Value: name}}}}
	_, err := b.defaults.UpdateOne(ctx, bson.D{{Key: "_id", Value: mongoDefaultID(key)}}, update, options.Update().SetUpsert(true))
	return err
}

func (b *mongoBackend) DeleteDefault(ctx context.Context, key DefaultKey) error {
	_, err := b.defaults.DeleteOne(ctx, bson.D{{Key: "_id", Value: mongoDefaultID(key)}})
	return err
}

func (b *mongoBackend) GetAuthor(ctx context.Context, messageID string) (Author, bool, error) {
	var doc authorDoc
	err := b.authors.FindOne(ctx, bson.D{{Key: "_id", Value: messageID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Author{}, false, nil
	}
	if err != nil {
		return Author{}, false, err
	}
	return Author{MessageID: doc.ID, UserID: doc.UserID}, true, nil
}

func (b *mongoBackend) InsertAuthor(ctx context.Context, a Author) error {
	_, err := b.authors.InsertOne(ctx, authorDoc{ID: a.MessageID, UserID: a.UserID})
	return err
}

func (b *mongoBackend) Close(ctx context.Context) error {
	return b.client.Disconnect(ctx)
}
