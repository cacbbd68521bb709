package searchindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/burenotti/go_course_backend/internal/domain/batch"
	"github.com/burenotti/go_course_backend/internal/domain/enrollment"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	batchesCollection     = "batches"
	enrollmentsCollection = "enrollments"
)

type batchDoc struct {
	ID                string    `bson:"_id"`
	CourseID          string    `bson:"course_id"`
	CourseName        string    `bson:"course_name"`
	Name              string    `bson:"name"`
	Description       string    `bson:"description"`
	EnrollmentType    string    `bson:"enrollment_type"`
	Status            int       `bson:"status"`
	StartDate         string    `bson:"start_date"`
	EndDate           string    `bson:"end_date,omitempty"`
	EnrollmentEndDate string    `bson:"enrollment_end_date,omitempty"`
	CreatedBy         string    `bson:"created_by"`
	CreatedFor        []string  `bson:"created_for"`
	Mentors           []string  `bson:"mentors"`
	CreatedAt         time.Time `bson:"created_at"`
	UpdatedAt         time.Time `bson:"updated_at"`
}

func toBatchDoc(s batch.Snapshot) batchDoc {
	return batchDoc{
		ID:                s.BatchID,
		CourseID:          s.CourseID,
		CourseName:        s.CourseName,
		Name:              s.Name,
		Description:       s.Description,
		EnrollmentType:    string(s.EnrollmentType),
		Status:            int(s.Status),
		StartDate:         batch.FormatDate(s.StartDate),
		EndDate:           batch.FormatDate(s.EndDate),
		EnrollmentEndDate: batch.FormatDate(s.EnrollmentEndDate),
		CreatedBy:         s.CreatedBy,
		CreatedFor:        lo.Ternary(s.CreatedFor == nil, []string{}, s.CreatedFor),
		Mentors:           lo.Ternary(s.Mentors == nil, []string{}, s.Mentors),
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

func fromBatchDoc(d batchDoc) (batch.Snapshot, error) {
	start, err := batch.ParseDate(d.StartDate)
	if err != nil {
		return batch.Snapshot{}, err
	}
	end, err := batch.ParseDate(d.EndDate)
	if err != nil {
		return batch.Snapshot{}, err
	}
	enrollmentEnd, err := batch.ParseDate(d.EnrollmentEndDate)
	if err != nil {
		return batch.Snapshot{}, err
	}
	return batch.Snapshot{
		BatchID:           d.ID,
		CourseID:          d.CourseID,
		CourseName:        d.CourseName,
		Name:              d.Name,
		Description:       d.Description,
		EnrollmentType:    batch.EnrollmentType(d.EnrollmentType),
		Status:            batch.Status(d.Status),
		StartDate:         start,
		EndDate:           end,
		EnrollmentEndDate: enrollmentEnd,
		CreatedBy:         d.CreatedBy,
		CreatedFor:        d.CreatedFor,
		Mentors:           d.Mentors,
		CreatedAt:         d.CreatedAt.UTC(),
		UpdatedAt:         d.UpdatedAt.UTC(),
	}, nil
}

type enrollmentDoc struct {
	ID         string    `bson:"_id"`
	BatchID    string    `bson:"batch_id"`
	UserID     string    `bson:"user_id"`
	CourseID   string    `bson:"course_id"`
	Active     bool      `bson:"active"`
	Progress   int       `bson:"progress"`
	AddedBy    string    `bson:"added_by"`
	EnrolledOn time.Time `bson:"enrolled_on"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

func toEnrollmentDoc(s enrollment.Snapshot) enrollmentDoc {
	return enrollmentDoc{
		ID:         s.ID(),
		BatchID:    s.BatchID,
		UserID:     s.UserID,
		CourseID:   s.CourseID,
		Active:     s.Active,
		Progress:   int(s.Progress),
		AddedBy:    s.AddedBy,
		EnrolledOn: s.EnrolledOn,
		UpdatedAt:  s.UpdatedAt,
	}
}

func fromEnrollmentDoc(d enrollmentDoc) enrollment.Snapshot {
	return enrollment.Snapshot{
		BatchID:    d.BatchID,
		UserID:     d.UserID,
		CourseID:   d.CourseID,
		Active:     d.Active,
		Progress:   enrollment.Progress(d.Progress),
		AddedBy:    d.AddedBy,
		EnrolledOn: d.EnrolledOn.UTC(),
		UpdatedAt:  d.UpdatedAt.UTC(),
	}
}

func batchFilter(f batch.Filter) bson.D {
	filter := bson.D{}
	if f.CourseID != "" {
		filter = append(filter, bson.E{Key: "course_id", Value: f.CourseID})
	}
	if len(f.BatchIDs) > 0 {
		filter = append(filter, bson.E{Key: "_id", Value: bson.M{"$in": f.BatchIDs}})
	}
	if len(f.Statuses) > 0 {
		statuses := lo.Map(f.Statuses, func(s batch.Status, _ int) int { return int(s) })
		filter = append(filter, bson.E{Key: "status", Value: bson.M{"$in": statuses}})
	}
	if f.EnrollmentType != "" {
		filter = append(filter, bson.E{Key: "enrollment_type", Value: string(f.EnrollmentType)})
	}
	return filter
}

func enrollmentFilter(f enrollment.Filter) bson.D {
	filter := bson.D{}
	if f.BatchID != "" {
		filter = append(filter, bson.E{Key: "batch_id", Value: f.BatchID})
	}
	if f.UserID != "" {
		filter = append(filter, bson.E{Key: "user_id", Value: f.UserID})
	}
	if f.CourseID != "" {
		filter = append(filter, bson.E{Key: "course_id", Value: f.CourseID})
	}
	if f.Active != nil {
		filter = append(filter, bson.E{Key: "active", Value: *f.Active})
	}
	return filter
}

// Mongo is the search index backed by two MongoDB collections.
type Mongo struct {
	syncer
	batches     *mongo.Collection
	enrollments *mongo.Collection
}

func NewMongo(db *mongo.Database, syncTimeout time.Duration, logger *slog.Logger) *Mongo {
	return &Mongo{
		syncer:      syncer{logger: logger, timeout: syncTimeout},
		batches:     db.Collection(batchesCollection),
		enrollments: db.Collection(enrollmentsCollection),
	}
}

// EnsureIndexes creates the secondary indexes used by queries. It is idempotent.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.batches.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "course_id", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_batches_course_status")},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", batchesCollection, err)
	}

	_, err = m.enrollments.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "batch_id", Value: 1}, {Key: "active", Value: 1}},
			Options: options.Index().SetName("idx_enrollments_batch_active")},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "course_id", Value: 1}, {Key: "active", Value: 1}},
			Options: options.Index().SetName("idx_enrollments_user_course_active")},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", enrollmentsCollection, err)
	}
	return nil
}

func (m *Mongo) GetBatch(ctx context.Context, batchID string) (batch.Snapshot, error) {
	var doc batchDoc
	err := m.batches.FindOne(ctx, bson.M{"_id": batchID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return batch.Snapshot{}, batch.ErrBatchNotFound
	}
	if err != nil {
		return batch.Snapshot{}, err
	}
	return fromBatchDoc(doc)
}

func (m *Mongo) SaveBatch(ctx context.Context, b batch.Snapshot) error {
	doc := toBatchDoc(b)
	_, err := m.batches.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (m *Mongo) SyncBatch(b batch.Snapshot) {
	b = b.Clone()
	m.goSave(kindBatch, b.BatchID, func(ctx context.Context) error {
		return m.SaveBatch(ctx, b)
	})
}

func (m *Mongo) QueryBatches(ctx context.Context, f batch.Filter) ([]batch.Snapshot, error) {
	cur, err := m.batches.Find(ctx, batchFilter(f), options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []batchDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	result := make([]batch.Snapshot, 0, len(docs))
	for _, d := range docs {
		s, err := fromBatchDoc(d)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, nil
}

func (m *Mongo) GetEnrollment(ctx context.Context, batchID, userID string) (enrollment.Snapshot, error) {
	var doc enrollmentDoc
	err := m.enrollments.FindOne(ctx, bson.M{"_id": enrollment.ID(batchID, userID)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return enrollment.Snapshot{}, enrollment.ErrEnrollmentNotFound
	}
	if err != nil {
		return enrollment.Snapshot{}, err
	}
	return fromEnrollmentDoc(doc), nil
}

func (m *Mongo) SaveEnrollment(ctx context.Context, e enrollment.Snapshot) error {
	doc := toEnrollmentDoc(e)
	_, err := m.enrollments.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (m *Mongo) SyncEnrollment(e enrollment.Snapshot) {
	m.goSave(kindEnrollment, e.ID(), func(ctx context.Context) error {
		return m.SaveEnrollment(ctx, e)
	})
}

func (m *Mongo) QueryEnrollments(ctx context.Context, f enrollment.Filter) ([]enrollment.Snapshot, error) {
	cur, err := m.enrollments.Find(ctx, enrollmentFilter(f), options.Find().SetSort(bson.D{{Key: "enrolled_on", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []enrollmentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return lo.Map(docs, func(d enrollmentDoc, _ int) enrollment.Snapshot { return fromEnrollmentDoc(d) }), nil
}

// Close waits for pending syncs. The client is owned and disconnected by the caller.
func (m *Mongo) Close(context.Context) error {
	m.Wait()
	return nil
}
