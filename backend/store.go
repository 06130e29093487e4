// Package backend implements the customer support operation backend: a
// SQLite-backed store of customers and tickets exposed to the rest of the
// system only as a catalog of named, typed operations (see Catalog). The
// broker is its sole caller.
package backend

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/crewlink/crewlink/broker"
	"github.com/crewlink/crewlink/logging"
)

// Customer is a customer record.
type Customer struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Ticket is a support ticket. CustomerName and CustomerEmail are populated on
// single-ticket lookups.
type Ticket struct {
	ID            int64  `json:"id"`
	CustomerID    int64  `json:"customer_id"`
	Issue         string `json:"issue"`
	Status        string `json:"status"`
	Priority      string `json:"priority"`
	CreatedAt     string `json:"created_at"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
}

// TicketStats aggregates ticket counts.
type TicketStats struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	ByPriority map[string]int `json:"by_priority"`
}

// CustomerStats aggregates customer counts.
type CustomerStats struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

// StoreOptions configure a Store.
type StoreOptions struct {
	Logger logging.Logger
}

// Store is the SQLite-backed operation backend. It satisfies broker.Backend.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

var _ broker.Backend = (*Store)(nil)

// Open opens (creating if necessary) the database at dsn and applies the
// schema. Use ":memory:" for an ephemeral store.
func Open(dsn string, optFns ...func(o *StoreOptions)) (*Store, error) {
	opts := StoreOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", dsn, err)
	}

	s := &Store{db: db, logger: opts.Logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info("backend.open", "dsn", dsn)

	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS customers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT,
			phone TEXT,
			status TEXT NOT NULL DEFAULT 'active' CHECK(status IN ('active', 'disabled')),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS tickets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			customer_id INTEGER NOT NULL,
			issue TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'open' CHECK(status IN ('open', 'in_progress', 'resolved')),
			priority TEXT NOT NULL DEFAULT 'medium' CHECK(priority IN ('low', 'medium', 'high')),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (customer_id) REFERENCES customers(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_customers_status ON customers(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_customer_id ON tickets(customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_priority ON tickets(priority)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("applying backend schema: %w", err)
		}
	}
	return nil
}

// Operations implements broker.Backend.
func (s *Store) Operations() []broker.Operation { return Catalog() }

// Execute implements broker.Backend. Argument shapes are guaranteed by the
// broker's schema validation; numeric arguments arrive as float64 after JSON
// decoding.
func (s *Store) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case OpGetCustomer:
		return s.GetCustomer(ctx, intArg(args, "customer_id"))
	case OpListCustomers:
		return s.ListCustomers(ctx, strArg(args, "status"))
	case OpAddCustomer:
		return s.AddCustomer(ctx, strArg(args, "name"), strArg(args, "email"), strArg(args, "phone"), strArg(args, "status"))
	case OpUpdateCustomer:
		return s.UpdateCustomer(ctx, intArg(args, "customer_id"), args)
	case OpDisableCustomer:
		return s.SetCustomerStatus(ctx, intArg(args, "customer_id"), "disabled")
	case OpActivateCustomer:
		return s.SetCustomerStatus(ctx, intArg(args, "customer_id"), "active")
	case OpGetTicket:
		return s.GetTicket(ctx, intArg(args, "ticket_id"))
	case OpListTickets:
		return s.ListTickets(ctx, strArg(args, "status"), strArg(args, "priority"), intArg(args, "customer_id"))
	case OpCreateTicket:
		return s.CreateTicket(ctx, intArg(args, "customer_id"), strArg(args, "issue"), strArg(args, "priority"), strArg(args, "status"))
	case OpUpdateTicketStatus:
		return s.UpdateTicketField(ctx, intArg(args, "ticket_id"), "status", strArg(args, "status"))
	case OpUpdateTicketPriority:
		return s.UpdateTicketField(ctx, intArg(args, "ticket_id"), "priority", strArg(args, "priority"))
	case OpDeleteTicket:
		return s.DeleteTicket(ctx, intArg(args, "ticket_id"))
	case OpGetTicketStats:
		return s.TicketStats(ctx)
	case OpGetCustomerStats:
		return s.CustomerStats(ctx)
	case OpSearchTickets:
		return s.SearchTickets(ctx, strArg(args, "keyword"))
	default:
		return nil, fmt.Errorf("unknown operation %q", name)
	}
}

func intArg(args map[string]any, key string) int64 {
	switch v := args[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

func strArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// GetCustomer returns the customer with the given ID.
func (s *Store) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, COALESCE(email, ''), COALESCE(phone, ''), status, created_at, updated_at
		 FROM customers WHERE id = ?`, id)

	var c Customer
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("customer %d not found", id)
		}
		return nil, err
	}
	return &c, nil
}

// ListCustomers returns all customers sorted by name, optionally filtered by status.
func (s *Store) ListCustomers(ctx context.Context, status string) ([]Customer, error) {
	query := `SELECT id, name, COALESCE(email, ''), COALESCE(phone, ''), status, created_at, updated_at FROM customers`
	var params []any
	if status != "" {
		query += ` WHERE status = ?`
		params = append(params, status)
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := []Customer{}
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// AddCustomer inserts a customer and returns the stored record.
func (s *Store) AddCustomer(ctx context.Context, name, email, phone, status string) (*Customer, error) {
	if status == "" {
		status = "active"
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO customers (name, email, phone, status) VALUES (?, ?, ?, ?)`,
		name, nullable(email), nullable(phone), status)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetCustomer(ctx, id)
}

// UpdateCustomer updates the provided fields of a customer record.
func (s *Store) UpdateCustomer(ctx context.Context, id int64, args map[string]any) (*Customer, error) {
	var sets []string
	var params []any
	for _, field := range []string{"name", "email", "phone"} {
		if v, ok := args[field].(string); ok && v != "" {
			sets = append(sets, field+" = ?")
			params = append(params, v)
		}
	}
	if len(sets) == 0 {
		return s.GetCustomer(ctx, id)
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	params = append(params, id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE customers SET `+strings.Join(sets, ", ")+` WHERE id = ?`, params...)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("customer %d not found", id)
	}
	return s.GetCustomer(ctx, id)
}

// SetCustomerStatus marks a customer active or disabled.
func (s *Store) SetCustomerStatus(ctx context.Context, id int64, status string) (*Customer, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE customers SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, status, id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("customer %d not found", id)
	}
	return s.GetCustomer(ctx, id)
}

// GetTicket returns a ticket joined with its customer's contact details.
func (s *Store) GetTicket(ctx context.Context, id int64) (*Ticket, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT t.id, t.customer_id, t.issue, t.status, t.priority, t.created_at,
		        c.name, COALESCE(c.email, '')
		 FROM tickets t JOIN customers c ON c.id = t.customer_id
		 WHERE t.id = ?`, id)

	var t Ticket
	if err := row.Scan(&t.ID, &t.CustomerID, &t.Issue, &t.Status, &t.Priority, &t.CreatedAt, &t.CustomerName, &t.CustomerEmail); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("ticket %d not found", id)
		}
		return nil, err
	}
	return &t, nil
}

// ListTickets returns tickets matching the optional filters, newest first.
func (s *Store) ListTickets(ctx context.Context, status, priority string, customerID int64) ([]Ticket, error) {
	query := `SELECT id, customer_id, issue, status, priority, created_at FROM tickets`
	var conds []string
	var params []any
	if status != "" {
		conds = append(conds, "status = ?")
		params = append(params, status)
	}
	if priority != "" {
		conds = append(conds, "priority = ?")
		params = append(params, priority)
	}
	if customerID != 0 {
		conds = append(conds, "customer_id = ?")
		params = append(params, customerID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	return s.queryTickets(ctx, query, params...)
}

// CreateTicket inserts a ticket for an existing customer.
func (s *Store) CreateTicket(ctx context.Context, customerID int64, issue, priority, status string) (*Ticket, error) {
	if priority == "" {
		priority = "medium"
	}
	if status == "" {
		status = "open"
	}
	if _, err := s.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tickets (customer_id, issue, status, priority) VALUES (?, ?, ?, ?)`,
		customerID, issue, status, priority)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetTicket(ctx, id)
}

// UpdateTicketField updates the status or priority of a ticket.
func (s *Store) UpdateTicketField(ctx context.Context, id int64, field, value string) (*Ticket, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tickets SET `+field+` = ? WHERE id = ?`, value, id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("ticket %d not found", id)
	}
	return s.GetTicket(ctx, id)
}

// DeleteTicket removes a ticket permanently.
func (s *Store) DeleteTicket(ctx context.Context, id int64) (map[string]any, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tickets WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("ticket %d not found", id)
	}
	return map[string]any{"deleted": id}, nil
}

// TicketStats aggregates ticket counts by status and priority.
func (s *Store) TicketStats(ctx context.Context) (*TicketStats, error) {
	stats := &TicketStats{ByStatus: map[string]int{}, ByPriority: map[string]int{}}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets`).Scan(&stats.Total); err != nil {
		return nil, err
	}
	if err := s.countGroups(ctx, `SELECT status, COUNT(*) FROM tickets GROUP BY status`, stats.ByStatus); err != nil {
		return nil, err
	}
	if err := s.countGroups(ctx, `SELECT priority, COUNT(*) FROM tickets GROUP BY priority`, stats.ByPriority); err != nil {
		return nil, err
	}
	return stats, nil
}

// CustomerStats aggregates customer counts by status.
func (s *Store) CustomerStats(ctx context.Context) (*CustomerStats, error) {
	stats := &CustomerStats{ByStatus: map[string]int{}}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers`).Scan(&stats.Total); err != nil {
		return nil, err
	}
	if err := s.countGroups(ctx, `SELECT status, COUNT(*) FROM customers GROUP BY status`, stats.ByStatus); err != nil {
		return nil, err
	}
	return stats, nil
}

// SearchTickets returns tickets whose issue matches the keyword.
func (s *Store) SearchTickets(ctx context.Context, keyword string) ([]Ticket, error) {
	return s.queryTickets(ctx,
		`SELECT id, customer_id, issue, status, priority, created_at
		 FROM tickets WHERE issue LIKE ? ORDER BY created_at DESC, id DESC`,
		"%"+keyword+"%")
}

func (s *Store) queryTickets(ctx context.Context, query string, params ...any) ([]Ticket, error) {
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets := []Ticket{}
	for rows.Next() {
		var t Ticket
		if err := rows.Scan(&t.ID, &t.CustomerID, &t.Issue, &t.Status, &t.Priority, &t.CreatedAt); err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (s *Store) countGroups(ctx context.Context, query string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Seed inserts a small demo data set; useful for examples and local runs.
func (s *Store) Seed(ctx context.Context) error {
	customers := []struct{ name, email, phone string }{
		{"Alice Johnson", "alice@example.com", "555-0101"},
		{"Bob Martinez", "bob@example.com", "555-0102"},
		{"Carol Chen", "carol@example.com", "555-0103"},
		{"Dan Okafor", "dan@example.com", "555-0104"},
		{"Erin Walsh", "erin@example.com", "555-0105"},
	}
	for _, c := range customers {
		if _, err := s.AddCustomer(ctx, c.name, c.email, c.phone, "active"); err != nil {
			return err
		}
	}

	tickets := []struct {
		customer int64
		issue    string
		priority string
	}{
		{1, "Cannot log in after password reset", "high"},
		{2, "Payment failed with error code 402", "high"},
		{3, "Dashboard loads slowly during peak hours", "medium"},
		{4, "Feature request: export reports as CSV", "low"},
		{5, "Billing statement shows duplicate charge", "medium"},
	}
	for _, t := range tickets {
		if _, err := s.CreateTicket(ctx, t.customer, t.issue, t.priority, "open"); err != nil {
			return err
		}
	}
	return nil
}
