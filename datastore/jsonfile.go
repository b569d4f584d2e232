package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coreybb/xianyu-autodeliver/models"
)

// legacyTimeLayout is how older processed_orders.json files stamp deliveries (China time).
const legacyTimeLayout = "2006-01-02 15:04:05"

var chinaTime = time.FixedZone("CST", 8*60*60)

// JSONFileStore keeps delivery records in a single human-readable JSON file.
// Every write rewrites the file atomically and fsyncs it before returning.
type JSONFileStore struct {
	path string

	mu  sync.Mutex
	doc jsonDocument
}

type jsonDocument struct {
	Records  map[string]models.DeliveryRecord    `json:"records"`
	Attempts map[string][]models.DeliveryAttempt `json:"attempts"`
}

// legacyEntry is one value of the flat order-id keyed file written by earlier versions.
type legacyEntry struct {
	Time    string `json:"time"`
	Title   string `json:"title"`
	Package string `json:"package"`
}

// OpenJSONFile loads path, or starts empty if it does not exist yet.
func OpenJSONFile(path string) (*JSONFileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("json store path is required")
	}
	store := &JSONFileStore{
		path: filepath.Clean(path),
		doc: jsonDocument{
			Records:  map[string]models.DeliveryRecord{},
			Attempts: map[string][]models.DeliveryAttempt{},
		},
	}

	data, err := os.ReadFile(store.path)
	if errors.Is(err, os.ErrNotExist) {
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read json store %s: %w", store.path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return store, nil
	}
	if err := store.decode(data); err != nil {
		return nil, fmt.Errorf("decode json store %s: %w", store.path, err)
	}
	return store, nil
}

func (s *JSONFileStore) decode(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if _, ok := raw["records"]; ok {
		var doc jsonDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		for id, record := range doc.Records {
			s.doc.Records[id] = record
		}
		for id, attempts := range doc.Attempts {
			s.doc.Attempts[id] = attempts
		}
		return nil
	}

	for orderID, value := range raw {
		var entry legacyEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			return fmt.Errorf("legacy entry %s: %w", orderID, err)
		}
		s.doc.Records[orderID] = entry.toRecord(orderID)
	}
	return nil
}

func (e legacyEntry) toRecord(orderID string) models.DeliveryRecord {
	deliveredAt, err := time.ParseInLocation(legacyTimeLayout, e.Time, chinaTime)
	if err != nil {
		deliveredAt = time.Time{}
	}
	months, _ := strconv.Atoi(e.Package)
	return models.DeliveryRecord{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		Title:       e.Title,
		Plan:        models.PlanDuration(months),
		DeliveredAt: deliveredAt.UTC(),
		Success:     true,
	}
}

func (s *JSONFileStore) Has(ctx context.Context, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.doc.Records[orderID]
	return ok && record.Success, nil
}

func (s *JSONFileStore) Put(ctx context.Context, record *models.DeliveryRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.doc.Records[record.OrderID]; ok && existing.Success {
		return fmt.Errorf("order %s: %w", record.OrderID, ErrAlreadyDelivered)
	}

	rec := *record
	rec.DeliveredAt = rec.DeliveredAt.UTC()
	s.doc.Records[rec.OrderID] = rec
	if err := s.flush(); err != nil {
		delete(s.doc.Records, rec.OrderID)
		return fmt.Errorf("%w: persist record for order %s: %w", ErrStorageWrite, rec.OrderID, err)
	}
	return nil
}

func (s *JSONFileStore) LoadAll(ctx context.Context) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delivered := make(map[string]struct{}, len(s.doc.Records))
	for id, record := range s.doc.Records {
		if record.Success {
			delivered[id] = struct{}{}
		}
	}
	return delivered, nil
}

func (s *JSONFileStore) Get(ctx context.Context, orderID string) (*models.DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.doc.Records[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	return &record, nil
}

func (s *JSONFileStore) List(ctx context.Context, limit int) ([]models.DeliveryRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	s.mu.Lock()
	records := make([]models.DeliveryRecord, 0, len(s.doc.Records))
	for _, record := range s.doc.Records {
		records = append(records, record)
	}
	s.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		if !records[i].DeliveredAt.Equal(records[j].DeliveredAt) {
			return records[i].DeliveredAt.After(records[j].DeliveredAt)
		}
		return records[i].OrderID < records[j].OrderID
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *JSONFileStore) RecordAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error {
	if err := validateAttempt(attempt); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.doc.Attempts[attempt.OrderID]
	s.doc.Attempts[attempt.OrderID] = append(previous, *attempt)
	if err := s.flush(); err != nil {
		s.doc.Attempts[attempt.OrderID] = previous
		return fmt.Errorf("failed to persist delivery attempt: %w", err)
	}
	return nil
}

func (s *JSONFileStore) CountFailedAttempts(ctx context.Context, orderID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, attempt := range s.doc.Attempts[orderID] {
		if attempt.Status == models.DeliveryAttemptFailed {
			count++
		}
	}
	return count, nil
}

func (s *JSONFileStore) Close() error {
	return nil
}

// flush writes the document to a temp file in the same directory, fsyncs it,
// renames it over the store and fsyncs the directory. Callers hold s.mu.
func (s *JSONFileStore) flush() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	committed = true

	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open store dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync store dir: %w", err)
	}
	return nil
}

var _ DeliveryStore = (*JSONFileStore)(nil)
