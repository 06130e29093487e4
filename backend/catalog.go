package backend

import "github.com/crewlink/crewlink/broker"

// Operation names exposed by the customer support backend.
const (
	OpGetCustomer          = "get_customer"
	OpListCustomers        = "list_customers"
	OpAddCustomer          = "add_customer"
	OpUpdateCustomer       = "update_customer"
	OpDisableCustomer      = "disable_customer"
	OpActivateCustomer     = "activate_customer"
	OpGetTicket            = "get_ticket"
	OpListTickets          = "list_tickets"
	OpCreateTicket         = "create_ticket"
	OpUpdateTicketStatus   = "update_ticket_status"
	OpUpdateTicketPriority = "update_ticket_priority"
	OpDeleteTicket         = "delete_ticket"
	OpGetTicketStats       = "get_ticket_stats"
	OpGetCustomerStats     = "get_customer_stats"
	OpSearchTickets        = "search_tickets"
)

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func integerProp(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func enumProp(description string, values ...string) map[string]any {
	enum := make([]any, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return map[string]any{"type": "string", "description": description, "enum": enum}
}

// Catalog returns the backend's operation definitions in a stable order.
// Names are unique within the catalog; Mutates marks the operations that
// write to the store and therefore must never be retried automatically.
func Catalog() []broker.Operation {
	return []broker.Operation{
		{
			Name:        OpGetCustomer,
			Description: "Retrieve a specific customer by their ID, including name, email, phone, status and timestamps.",
			Parameters: objectSchema(map[string]any{
				"customer_id": integerProp("The customer's ID"),
			}, "customer_id"),
			Returns: "customer",
		},
		{
			Name:        OpListCustomers,
			Description: "List all customers sorted by name, with an optional status filter ('active' or 'disabled').",
			Parameters: objectSchema(map[string]any{
				"status": enumProp("Optional status filter", "active", "disabled"),
			}),
			Returns: "customer list",
		},
		{
			Name:        OpAddCustomer,
			Description: "Create a new customer record. Requires a name; email, phone and status are optional.",
			Parameters: objectSchema(map[string]any{
				"name":   stringProp("Customer name"),
				"email":  stringProp("Contact email"),
				"phone":  stringProp("Contact phone number"),
				"status": enumProp("Initial account status", "active", "disabled"),
			}, "name"),
			Returns: "customer",
			Mutates: true,
		},
		{
			Name:        OpUpdateCustomer,
			Description: "Update an existing customer's name, email or phone. Only provided fields change.",
			Parameters: objectSchema(map[string]any{
				"customer_id": integerProp("The customer's ID"),
				"name":        stringProp("New customer name"),
				"email":       stringProp("New contact email"),
				"phone":       stringProp("New contact phone number"),
			}, "customer_id"),
			Returns: "customer",
			Mutates: true,
		},
		{
			Name:        OpDisableCustomer,
			Description: "Disable a customer account. The customer is marked 'disabled' but not deleted.",
			Parameters: objectSchema(map[string]any{
				"customer_id": integerProp("The customer's ID"),
			}, "customer_id"),
			Returns: "customer",
			Mutates: true,
		},
		{
			Name:        OpActivateCustomer,
			Description: "Activate a previously disabled customer account.",
			Parameters: objectSchema(map[string]any{
				"customer_id": integerProp("The customer's ID"),
			}, "customer_id"),
			Returns: "customer",
			Mutates: true,
		},
		{
			Name:        OpGetTicket,
			Description: "Retrieve a specific ticket by ID along with its customer's name and email.",
			Parameters: objectSchema(map[string]any{
				"ticket_id": integerProp("The ticket's ID"),
			}, "ticket_id"),
			Returns: "ticket",
		},
		{
			Name:        OpListTickets,
			Description: "List tickets with optional status ('open', 'in_progress', 'resolved'), priority ('low', 'medium', 'high') and customer filters.",
			Parameters: objectSchema(map[string]any{
				"status":      enumProp("Optional status filter", "open", "in_progress", "resolved"),
				"priority":    enumProp("Optional priority filter", "low", "medium", "high"),
				"customer_id": integerProp("Optional customer filter"),
			}),
			Returns: "ticket list",
		},
		{
			Name:        OpCreateTicket,
			Description: "Create a new support ticket for a customer. Requires the customer ID and an issue description.",
			Parameters: objectSchema(map[string]any{
				"customer_id": integerProp("The customer's ID"),
				"issue":       stringProp("Issue description"),
				"priority":    enumProp("Ticket priority", "low", "medium", "high"),
				"status":      enumProp("Initial ticket status", "open", "in_progress", "resolved"),
			}, "customer_id", "issue"),
			Returns: "ticket",
			Mutates: true,
		},
		{
			Name:        OpUpdateTicketStatus,
			Description: "Update the status of an existing ticket.",
			Parameters: objectSchema(map[string]any{
				"ticket_id": integerProp("The ticket's ID"),
				"status":    enumProp("New status", "open", "in_progress", "resolved"),
			}, "ticket_id", "status"),
			Returns: "ticket",
			Mutates: true,
		},
		{
			Name:        OpUpdateTicketPriority,
			Description: "Update the priority level of an existing ticket.",
			Parameters: objectSchema(map[string]any{
				"ticket_id": integerProp("The ticket's ID"),
				"priority":  enumProp("New priority", "low", "medium", "high"),
			}, "ticket_id", "priority"),
			Returns: "ticket",
			Mutates: true,
		},
		{
			Name:        OpDeleteTicket,
			Description: "Delete a ticket permanently. This action cannot be undone.",
			Parameters: objectSchema(map[string]any{
				"ticket_id": integerProp("The ticket's ID"),
			}, "ticket_id"),
			Returns: "deletion confirmation",
			Mutates: true,
		},
		{
			Name:        OpGetTicketStats,
			Description: "Get ticket statistics: totals plus counts by status and priority.",
			Parameters:  objectSchema(map[string]any{}),
			Returns:     "ticket statistics",
		},
		{
			Name:        OpGetCustomerStats,
			Description: "Get customer statistics: total count and count by status.",
			Parameters:  objectSchema(map[string]any{}),
			Returns:     "customer statistics",
		},
		{
			Name:        OpSearchTickets,
			Description: "Search tickets by keyword in the issue description.",
			Parameters: objectSchema(map[string]any{
				"keyword": stringProp("Keyword to search for"),
			}, "keyword"),
			Returns: "ticket list",
		},
	}
}
