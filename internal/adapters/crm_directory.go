package adapters

import (
	"context"
	"errors"
	"strings"

	"sales_agent_backend/internal/calls/ports"
	"sales_agent_backend/internal/contacts"
	"sales_agent_backend/internal/crm/salesforce"
)

// Salesforce key prefixes for the two person objects.
const (
	contactIDPrefix = "003"
	leadIDPrefix    = "00Q"
)

// SalesforceAPI is the subset of the Salesforce client the call flow uses.
type SalesforceAPI interface {
	FindByPhone(ctx context.Context, phone string) (*salesforce.Person, error)
	FindByEmail(ctx context.Context, email string) (*salesforce.Person, error)
	CreateLead(ctx context.Context, in salesforce.LeadInput) (string, error)
	UpdateEmail(ctx context.Context, typ salesforce.PersonType, id, email string) error
	LogTask(ctx context.Context, in salesforce.TaskInput) (string, error)
}

// CRMDirectory adapts the Salesforce client to the contact resolver.
// It implements contacts.Directory.
type CRMDirectory struct {
	api SalesforceAPI
}

// NewCRMDirectory creates a directory backed by Salesforce.
func NewCRMDirectory(api SalesforceAPI) *CRMDirectory {
	return &CRMDirectory{api: api}
}

func (d *CRMDirectory) FindByPhone(ctx context.Context, phone string) (*contacts.Record, error) {
	p, err := d.api.FindByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	return toRecord(p), nil
}

func (d *CRMDirectory) FindByEmail(ctx context.Context, email string) (*contacts.Record, error) {
	p, err := d.api.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return toRecord(p), nil
}

// Create inserts a Lead for a caller the CRM does not know.
func (d *CRMDirectory) Create(ctx context.Context, phone, email string) (*contacts.Record, error) {
	id, err := d.api.CreateLead(ctx, salesforce.LeadInput{Phone: phone, Email: email})
	if err != nil {
		if errors.Is(err, salesforce.ErrDuplicate) {
			return nil, errors.Join(contacts.ErrCreateConflict, err)
		}
		return nil, err
	}
	return &contacts.Record{
		ID:      id,
		Kind:    contacts.KindLead,
		Phone:   phone,
		Email:   email,
		Created: true,
	}, nil
}

// UpdateEmail writes the address to the Contact or Lead named by id.
func (d *CRMDirectory) UpdateEmail(ctx context.Context, id, email string) error {
	return d.api.UpdateEmail(ctx, personType(id), id, email)
}

func toRecord(p *salesforce.Person) *contacts.Record {
	if p == nil {
		return nil
	}
	kind := contacts.KindLead
	if p.Type == salesforce.TypeContact {
		kind = contacts.KindContact
	}
	return &contacts.Record{
		ID:        p.ID,
		Kind:      kind,
		FirstName: p.FirstName,
		Phone:     p.Phone,
		Email:     p.Email,
	}
}

func personType(id string) salesforce.PersonType {
	if strings.HasPrefix(id, contactIDPrefix) {
		return salesforce.TypeContact
	}
	return salesforce.TypeLead
}

// CRMTaskLogger writes completed call Tasks to Salesforce.
// It implements ports.TaskLogger.
type CRMTaskLogger struct {
	api SalesforceAPI
}

// NewCRMTaskLogger creates a task logger backed by Salesforce.
func NewCRMTaskLogger(api SalesforceAPI) *CRMTaskLogger {
	return &CRMTaskLogger{api: api}
}

func (l *CRMTaskLogger) LogTask(ctx context.Context, task ports.CallTask) (string, error) {
	return l.api.LogTask(ctx, salesforce.TaskInput{
		WhoID:        task.WhoID,
		Subject:      task.Subject,
		Body:         task.Body,
		Direction:    salesforce.DirectionInbound,
		ActivityDate: task.ActivityDate,
	})
}

var (
	_ contacts.Directory = (*CRMDirectory)(nil)
	_ ports.TaskLogger   = (*CRMTaskLogger)(nil)
	_ SalesforceAPI      = (*salesforce.Client)(nil)
)
