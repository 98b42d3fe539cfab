package app

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/debridge-finance/oracle-node/models"
	log "github.com/sirupsen/logrus"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	lock "github.com/square/mongo-lock"
)

type Database interface {
	Connect() error
	SetupLockers() error
	SetupIndexes() error
	Disconnect() error

	InsertOne(collection string, data interface{}) error
	FindOne(collection string, filter interface{}, result interface{}) error
	FindMany(collection string, filter interface{}, result interface{}) error
	FindManySorted(collection string, filter interface{}, sort interface{}, skip int64, limit int64, result interface{}) error
	Distinct(collection string, field string, filter interface{}) ([]interface{}, error)
	UpdateOne(collection string, filter interface{}, update interface{}) error
	UpsertOne(collection string, filter interface{}, update interface{}) error

	// SaveSubmissionWithEvent persists a submission and its paired monitoring
	// event in a single transaction. The event insert is idempotent.
	SaveSubmissionWithEvent(submission models.Submission, event *models.MonitoringEvent) error
	// SaveMonitoringEvent persists a monitoring event if absent.
	SaveMonitoringEvent(event models.MonitoringEvent) error
	// CommitBalanceValidation writes a submission's validation outcome and the
	// updated balance sheet rows in a single transaction.
	CommitBalanceValidation(submissionId string, status string, reason string, balances []models.BalanceSheetEntry) error

	XLock(resourceId string) (string, error)
	Unlock(lockId string) error
}

// mongoDatabase is a wrapper around the mongo database
type mongoDatabase struct {
	db       *mongo.Database
	uri      string
	database string
	locker   *lock.Client
}

var (
	DB Database
)

func (d *mongoDatabase) timeout() time.Duration {
	return time.Duration(Config.MongoDB.TimeoutMillis) * time.Millisecond
}

// Connect connects to the database
func (d *mongoDatabase) Connect() error {
	log.Debug("[DB] Connecting to database")
	wcMajority := writeconcern.New(writeconcern.WMajority(), writeconcern.WTimeout(d.timeout()))

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(d.uri).SetWriteConcern(wcMajority))
	if err != nil {
		return err
	}
	d.db = client.Database(d.database)

	log.Info("[DB] Connected to mongo database: ", d.database)
	return nil
}

// SetupLockers sets up the locker
func (d *mongoDatabase) SetupLockers() error {
	log.Debug("[DB] Setting up locker")

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
	defer cancel()

	locker := lock.NewClient(d.db.Collection("locks"))
	locker.CreateIndexes(ctx)
	d.locker = locker

	log.Info("[DB] Locker setup")
	return nil
}

func randomString(n int) string {
	const alphanum = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	var bytes = make([]byte, n)
	rand.Read(bytes)
	for i, b := range bytes {
		bytes[i] = alphanum[b%byte(len(alphanum))]
	}
	return string(bytes)
}

// XLock locks a resource for exclusive access
func (d *mongoDatabase) XLock(resourceId string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
	defer cancel()

	lockId := randomString(32)
	err := d.locker.XLock(ctx, resourceId, lockId, lock.LockDetails{})
	return lockId, err
}

// Unlock unlocks a resource
func (d *mongoDatabase) Unlock(lockId string) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
	defer cancel()

	_, err := d.locker.Unlock(ctx, lockId)
	return err
}

type indexSpec struct {
	collection string
	keys       bson.D
	unique     bool
}

// SetupIndexes sets up the indexes; the scan and reconciliation queries filter
// on every status field, nonce, block number and destination chain.
func (d *mongoDatabase) SetupIndexes() error {
	log.Debug("[DB] Setting up indexes")

	specs := []indexSpec{
		{models.CollectionSubmissions, bson.D{{Key: "submission_id", Value: 1}}, true},
		{models.CollectionSubmissions, bson.D{{Key: "chain_from", Value: 1}, {Key: "nonce", Value: 1}}, false},
		{models.CollectionSubmissions, bson.D{{Key: "block_number", Value: 1}}, false},
		{models.CollectionSubmissions, bson.D{{Key: "chain_to", Value: 1}}, false},
		{models.CollectionSubmissions, bson.D{{Key: "status", Value: 1}}, false},
		{models.CollectionSubmissions, bson.D{{Key: "ipfs_status", Value: 1}}, false},
		{models.CollectionSubmissions, bson.D{{Key: "api_status", Value: 1}}, false},
		{models.CollectionSubmissions, bson.D{{Key: "bundlr_status", Value: 1}}, false},
		{models.CollectionSubmissions, bson.D{{Key: "assets_status", Value: 1}}, false},
		{models.CollectionSubmissions, bson.D{{Key: "balance_validation_status", Value: 1}}, false},
		{models.CollectionMonitoringEvents, bson.D{{Key: "submission_id", Value: 1}}, true},
		{models.CollectionBalances, bson.D{{Key: "debridge_id", Value: 1}, {Key: "chain_id", Value: 1}}, true},
		{models.CollectionSupportedChains, bson.D{{Key: "chain_id", Value: 1}}, true},
		{models.CollectionTokens, bson.D{{Key: "debridge_id", Value: 1}}, true},
		{models.CollectionHealthChecks, bson.D{{Key: "oracle_id", Value: 1}, {Key: "hostname", Value: 1}}, true},
	}

	for _, spec := range specs {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
		opts := options.Index()
		if spec.unique {
			opts = opts.SetUnique(true)
		}
		_, err := d.db.Collection(spec.collection).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    spec.keys,
			Options: opts,
		})
		cancel()
		if err != nil {
			return err
		}
	}

	log.Info("[DB] Indexes setup")
	return nil
}

// Disconnect disconnects from the database
func (d *mongoDatabase) Disconnect() error {
	log.Debug("[DB] Disconnecting from database")
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
	defer cancel()
	err := d.db.Client().Disconnect(ctx)
	log.Info("[DB] Disconnected from database")
	return err
}

// method for insert single value in a collection
func (d *mongoDatabase) InsertOne(collection string, data interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
	defer cancel()
	_, err := d.db.Collection(collection).InsertOne(ctx, data)
	return err
}

// method for find single value in a collection
func (d *mongoDatabase) FindOne(collection string, filter interface{}, result interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
	defer cancel()
	err := d.db.Collection(collection).FindOne(ctx, filter).Decode(result)
	return err
}

// method for find multiple values in a collection
func (d *mongoDatabase) FindMany(collection string, filter interface{}, result interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
	defer cancel()
	cursor, err := d.db.Collection(collection).Find(ctx, filter)
	if err != nil {
		return err
	}
	err = cursor.All(ctx, result)
	return err
}

// method for find multiple values with an explicit order and page window
func (d *mongoDatabase) FindManySorted(collection string, filter interface{}, sort interface{}, skip int64, limit int64, result interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
	defer cancel()

	opts := options.Find().SetSort(sort)
	if skip > 0 {
		opts = opts.SetSkip(skip)
	}
	if limit > 0 {
		opts = opts.SetLimit(limit)
	}
	cursor, err := d.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return err
	}
	err = cursor.All(ctx, result)
	return err
}

// method for distinct values of a field in a collection
func (d *mongoDatabase) Distinct(collection string, field string, filter interface{}) ([]interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
	defer cancel()
	return d.db.Collection(collection).Distinct(ctx, field, filter)
}

// method for update single value in a collection
func (d *mongoDatabase) UpdateOne(collection string, filter interface{}, update interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
	defer cancel()
	_, err := d.db.Collection(collection).UpdateOne(ctx, filter, update)
	return err
}

// method for upsert single value in a collection
func (d *mongoDatabase) UpsertOne(collection string, filter interface{}, update interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
	defer cancel()

	opts := options.Update().SetUpsert(true)
	_, err := d.db.Collection(collection).UpdateOne(ctx, filter, update, opts)
	return err
}

func (d *mongoDatabase) withTransaction(fn func(sc mongo.SessionContext) (interface{}, error)) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
	defer cancel()

	session, err := d.db.Client().StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, fn)
	return err
}

func (d *mongoDatabase) SaveSubmissionWithEvent(submission models.Submission, event *models.MonitoringEvent) error {
	return d.withTransaction(func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := d.db.Collection(models.CollectionSubmissions).InsertOne(sc, submission); err != nil {
			return nil, err
		}
		if event != nil {
			if err := d.saveMonitoringEvent(sc, *event); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
}

func (d *mongoDatabase) SaveMonitoringEvent(event models.MonitoringEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
	defer cancel()
	return d.saveMonitoringEvent(ctx, event)
}

// saveMonitoringEvent is an upsert-if-absent; monitoring events are immutable
// once written.
func (d *mongoDatabase) saveMonitoringEvent(ctx context.Context, event models.MonitoringEvent) error {
	opts := options.Update().SetUpsert(true)
	_, err := d.db.Collection(models.CollectionMonitoringEvents).UpdateOne(
		ctx,
		bson.M{"submission_id": event.SubmissionId},
		bson.M{"$setOnInsert": event},
		opts,
	)
	return err
}

func (d *mongoDatabase) CommitBalanceValidation(submissionId string, status string, reason string, balances []models.BalanceSheetEntry) error {
	return d.withTransaction(func(sc mongo.SessionContext) (interface{}, error) {
		update := bson.M{"$set": bson.M{
			"balance_validation_status": status,
			"balance_validation_reason": reason,
			"updated_at":                time.Now(),
		}}
		_, err := d.db.Collection(models.CollectionSubmissions).UpdateOne(sc, bson.M{"submission_id": submissionId}, update)
		if err != nil {
			return nil, err
		}
		opts := options.Update().SetUpsert(true)
		for _, balance := range balances {
			_, err := d.db.Collection(models.CollectionBalances).UpdateOne(
				sc,
				bson.M{"debridge_id": balance.DebridgeId, "chain_id": balance.ChainId},
				bson.M{"$set": bson.M{"amount": balance.Amount, "updated_at": time.Now()}},
				opts,
			)
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
}

// InitDB creates a new database wrapper
func InitDB() {
	DB = &mongoDatabase{
		uri:      Config.MongoDB.URI,
		database: Config.MongoDB.Database,
	}

	err := DB.Connect()
	if err != nil {
		log.Fatal(err)
	}
	err = DB.SetupIndexes()
	if err != nil {
		log.Fatal(err)
	}
	err = DB.SetupLockers()
	if err != nil {
		log.Fatal(err)
	}
	log.Info("[DB] Database initialized")
}
