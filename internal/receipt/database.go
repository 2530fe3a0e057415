package receipt

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const (
	ticketBucketName   = "tickets"
	itemBucketName     = "ticket_items" // one nested bucket per ticket
	storeBucketName    = "stores"
	productBucketName  = "products"
	purchaseBucketName = "purchases"
)

// DB is the storage collaborator. Every read or write happens inside a
// transaction; an error returned from an Update callback rolls back every
// write made in it.
type DB interface {
	// View runs fn in a read-only transaction
	View(fn func(tx Tx) error) error
	// Update runs fn in a read-write transaction. Update calls are serialized.
	Update(fn func(tx Tx) error) error
	// Close closes the database connection
	Close() error
}

// Tx is the set of operations available inside a transaction. Getters
// return an error wrapping ErrNotFound for missing records.
type Tx interface {
	GetTicket(id string) (*TicketScan, error)
	SaveTicket(ticket *TicketScan) error
	// DeleteTicket removes the ticket and all of its items
	DeleteTicket(id string) error
	ListTickets(userID string) ([]*TicketScan, error)

	GetItem(ticketID, itemID string) (*TicketScanItem, error)
	SaveItem(item *TicketScanItem) error
	// ListItems returns a ticket's items ordered by position
	ListItems(ticketID string) ([]*TicketScanItem, error)

	GetStore(id string) (*Store, error)
	SaveStore(store *Store) error
	DeleteStore(id string) error
	ListStores(userID string) ([]*Store, error)

	GetProduct(id string) (*Product, error)
	SaveProduct(product *Product) error
	DeleteProduct(id string) error
	ListProducts(userID string) ([]*Product, error)

	SavePurchase(purchase *Purchase) error
	ListPurchases(userID string) ([]*Purchase, error)
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	// Create buckets if they don't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{ticketBucketName, itemBucketName, storeBucketName, productBucketName, purchaseBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func (b *BoltDB) View(fn func(tx Tx) error) error {
	return b.db.View(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

func (b *BoltDB) Update(fn func(tx Tx) error) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

type boltTx struct {
	tx *bbolt.Tx
}

func (t *boltTx) put(bucket *bbolt.Bucket, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", id, err)
	}
	return bucket.Put([]byte(id), data)
}

func (t *boltTx) get(bucket *bbolt.Bucket, kind, id string, v any) error {
	data := bucket.Get([]byte(id))
	if data == nil {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshaling %s %s: %w", kind, id, err)
	}
	return nil
}

// each decodes every value of a flat bucket and hands it to fn
func each[T any](bucket *bbolt.Bucket, fn func(*T)) error {
	return bucket.ForEach(func(k, v []byte) error {
		var record T
		if err := json.Unmarshal(v, &record); err != nil {
			return fmt.Errorf("unmarshaling %s: %w", k, err)
		}
		fn(&record)
		return nil
	})
}

func (t *boltTx) GetTicket(id string) (*TicketScan, error) {
	var ticket TicketScan
	if err := t.get(t.tx.Bucket([]byte(ticketBucketName)), "ticket", id, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (t *boltTx) SaveTicket(ticket *TicketScan) error {
	return t.put(t.tx.Bucket([]byte(ticketBucketName)), ticket.ID, ticket)
}

func (t *boltTx) DeleteTicket(id string) error {
	items := t.tx.Bucket([]byte(itemBucketName))
	if items.Bucket([]byte(id)) != nil {
		if err := items.DeleteBucket([]byte(id)); err != nil {
			return fmt.Errorf("deleting items of ticket %s: %w", id, err)
		}
	}
	return t.tx.Bucket([]byte(ticketBucketName)).Delete([]byte(id))
}

// ListTickets returns a user's tickets, newest first
func (t *boltTx) ListTickets(userID string) ([]*TicketScan, error) {
	tickets := make([]*TicketScan, 0)
	err := each(t.tx.Bucket([]byte(ticketBucketName)), func(ticket *TicketScan) {
		if ticket.UserID == userID {
			tickets = append(tickets, ticket)
		}
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(tickets, func(i, j int) bool {
		return tickets[i].CreatedAt.After(tickets[j].CreatedAt)
	})
	return tickets, nil
}

func (t *boltTx) GetItem(ticketID, itemID string) (*TicketScanItem, error) {
	bucket := t.tx.Bucket([]byte(itemBucketName)).Bucket([]byte(ticketID))
	if bucket == nil {
		return nil, fmt.Errorf("%w: item %s", ErrNotFound, itemID)
	}
	var item TicketScanItem
	if err := t.get(bucket, "item", itemID, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (t *boltTx) SaveItem(item *TicketScanItem) error {
	bucket, err := t.tx.Bucket([]byte(itemBucketName)).CreateBucketIfNotExists([]byte(item.TicketScanID))
	if err != nil {
		return fmt.Errorf("creating items bucket for ticket %s: %w", item.TicketScanID, err)
	}
	return t.put(bucket, item.ID, item)
}

func (t *boltTx) ListItems(ticketID string) ([]*TicketScanItem, error) {
	items := make([]*TicketScanItem, 0)
	bucket := t.tx.Bucket([]byte(itemBucketName)).Bucket([]byte(ticketID))
	if bucket == nil {
		return items, nil
	}
	if err := each(bucket, func(item *TicketScanItem) { items = append(items, item) }); err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Position < items[j].Position
	})
	return items, nil
}

func (t *boltTx) GetStore(id string) (*Store, error) {
	var store Store
	if err := t.get(t.tx.Bucket([]byte(storeBucketName)), "store", id, &store); err != nil {
		return nil, err
	}
	return &store, nil
}

func (t *boltTx) SaveStore(store *Store) error {
	return t.put(t.tx.Bucket([]byte(storeBucketName)), store.ID, store)
}

func (t *boltTx) DeleteStore(id string) error {
	return t.tx.Bucket([]byte(storeBucketName)).Delete([]byte(id))
}

// ListStores returns a user's stores sorted by name
func (t *boltTx) ListStores(userID string) ([]*Store, error) {
	stores := make([]*Store, 0)
	err := each(t.tx.Bucket([]byte(storeBucketName)), func(store *Store) {
		if store.UserID == userID {
			stores = append(stores, store)
		}
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(stores, func(i, j int) bool { return stores[i].Name < stores[j].Name })
	return stores, nil
}

func (t *boltTx) GetProduct(id string) (*Product, error) {
	var product Product
	if err := t.get(t.tx.Bucket([]byte(productBucketName)), "product", id, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

func (t *boltTx) SaveProduct(product *Product) error {
	return t.put(t.tx.Bucket([]byte(productBucketName)), product.ID, product)
}

func (t *boltTx) DeleteProduct(id string) error {
	return t.tx.Bucket([]byte(productBucketName)).Delete([]byte(id))
}

// ListProducts returns a user's catalog sorted by name
func (t *boltTx) ListProducts(userID string) ([]*Product, error) {
	products := make([]*Product, 0)
	err := each(t.tx.Bucket([]byte(productBucketName)), func(product *Product) {
		if product.UserID == userID {
			products = append(products, product)
		}
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

func (t *boltTx) SavePurchase(purchase *Purchase) error {
	return t.put(t.tx.Bucket([]byte(purchaseBucketName)), purchase.ID, purchase)
}

// ListPurchases returns a user's purchases, most recent purchase date first
func (t *boltTx) ListPurchases(userID string) ([]*Purchase, error) {
	purchases := make([]*Purchase, 0)
	err := each(t.tx.Bucket([]byte(purchaseBucketName)), func(purchase *Purchase) {
		if purchase.UserID == userID {
			purchases = append(purchases, purchase)
		}
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(purchases, func(i, j int) bool {
		return purchases[i].PurchaseDate.After(purchases[j].PurchaseDate)
	})
	return purchases, nil
}
