package salesforce

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"sales_agent_backend/platform/apperr"
	"sales_agent_backend/platform/phone"
)

// PersonType is the sObject a person was found in.
type PersonType string

const (
	TypeContact PersonType = "contact"
	TypeLead    PersonType = "lead"
)

func (t PersonType) sObject() string {
	if t == TypeContact {
		return "Contact"
	}
	return "Lead"
}

// Person is a Contact or Lead.
type Person struct {
	Type      PersonType `json:"type"`
	ID        string     `json:"id"`
	FirstName string     `json:"first_name"`
	Email     string     `json:"email,omitempty"`
	Phone     string     `json:"phone,omitempty"`
}

type queryResponse struct {
	TotalSize int  `json:"totalSize"`
	Done      bool `json:"done"`
	Records   []struct {
		ID        string `json:"Id"`
		FirstName string `json:"FirstName"`
		Email     string `json:"Email"`
		Phone     string `json:"Phone"`
	} `json:"records"`
}

// FindContactOrLead searches Contacts, then Leads, for a record matching the
// email or the phone. It returns (nil, nil) when neither matches.
func (c *Client) FindContactOrLead(ctx context.Context, email, phoneNumber string) (*Person, error) {
	var conditions []string
	if email = strings.TrimSpace(email); email != "" {
		conditions = append(conditions, "Email = "+quote(email))
	}
	if phoneNumber = strings.TrimSpace(phoneNumber); phoneNumber != "" {
		conditions = append(conditions, phoneCondition(phoneNumber))
	}
	if len(conditions) == 0 {
		return nil, apperr.Validation("email or phone is required")
	}
	return c.findPerson(ctx, strings.Join(conditions, " OR "))
}

// FindByPhone matches the common stored spellings of the number.
func (c *Client) FindByPhone(ctx context.Context, phoneNumber string) (*Person, error) {
	return c.findPerson(ctx, phoneCondition(phoneNumber))
}

// FindByEmail matches Email exactly.
func (c *Client) FindByEmail(ctx context.Context, email string) (*Person, error) {
	return c.findPerson(ctx, "Email = "+quote(strings.TrimSpace(email)))
}

func phoneCondition(phoneNumber string) string {
	variants := phone.Variants(phone.NormalizeE164(phoneNumber))
	if raw := strings.TrimSpace(phoneNumber); raw != "" && !contains(variants, raw) {
		variants = append(variants, raw)
	}
	list := inList(variants)
	return "(Phone IN " + list + " OR MobilePhone IN " + list + ")"
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func (c *Client) findPerson(ctx context.Context, where string) (*Person, error) {
	for _, typ := range []PersonType{TypeContact, TypeLead} {
		soql := fmt.Sprintf("SELECT Id, FirstName, Email, Phone FROM %s WHERE %s", typ.sObject(), where)
		if typ == TypeLead {
			soql += " AND IsConverted = false"
		}
		soql += " ORDER BY CreatedDate ASC LIMIT 1"

		var res queryResponse
		if err := c.do(ctx, "GET", "query", url.Values{"q": {soql}}, nil, &res); err != nil {
			return nil, err
		}
		if len(res.Records) > 0 {
			r := res.Records[0]
			return &Person{Type: typ, ID: r.ID, FirstName: r.FirstName, Email: r.Email, Phone: r.Phone}, nil
		}
	}
	return nil, nil
}

// LeadInput are the fields written when a caller is new to the CRM.
type LeadInput struct {
	FirstName        string
	LastName         string
	Company          string
	Email            string
	Phone            string
	Title            string
	Website          string
	Country          string
	LeadSourceDetail string
}

type createResponse struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
}

// CreateLead inserts a Lead. LastName and Company are required by Salesforce
// and default to "Unknown".
func (c *Client) CreateLead(ctx context.Context, in LeadInput) (string, error) {
	fields := map[string]string{
		"FirstName":             in.FirstName,
		"LastName":              defaultString(in.LastName, "Unknown"),
		"Company":               defaultString(in.Company, "Unknown"),
		"Email":                 in.Email,
		"Phone":                 in.Phone,
		"Title":                 in.Title,
		"Website":               in.Website,
		"Country":               in.Country,
		"Lead_Source_Detail__c": defaultString(in.LeadSourceDetail, c.leadSourceDetail),
	}
	for k, v := range fields {
		if strings.TrimSpace(v) == "" {
			delete(fields, k)
		}
	}

	var res createResponse
	if err := c.do(ctx, "POST", "sobjects/Lead", nil, fields, &res); err != nil {
		return "", err
	}
	if !res.Success || res.ID == "" {
		return "", apperr.Internal("salesforce did not confirm lead creation")
	}
	c.log.Info("salesforce lead created", "lead_id", res.ID)
	return res.ID, nil
}

// UpdateEmail sets Email on a Contact or Lead.
func (c *Client) UpdateEmail(ctx context.Context, typ PersonType, id, email string) error {
	path := fmt.Sprintf("sobjects/%s/%s", typ.sObject(), url.PathEscape(id))
	return c.do(ctx, "PATCH", path, nil, map[string]string{"Email": email}, nil)
}

// Direction of the logged activity.
type Direction string

const (
	DirectionInbound  Direction = "Inbound"
	DirectionOutbound Direction = "Outbound"
)

// TaskInput describes a completed call activity.
type TaskInput struct {
	WhoID        string
	Subject      string
	Body         string
	Direction    Direction
	ActivityDate time.Time
}

// LogTask records a completed call Task against a Contact or Lead.
func (c *Client) LogTask(ctx context.Context, in TaskInput) (string, error) {
	if strings.TrimSpace(in.WhoID) == "" {
		return "", apperr.Validation("task needs a contact or lead id")
	}
	if in.Direction == "" {
		in.Direction = DirectionInbound
	}
	if in.ActivityDate.IsZero() {
		in.ActivityDate = time.Now()
	}

	fields := map[string]string{
		"WhoId":             in.WhoID,
		"Subject":           in.Subject,
		"ActivityDate":      in.ActivityDate.Format("2006-01-02"),
		"Status":            "Completed",
		"Description":       in.Body,
		"Type":              "Call",
		"TaskSubtype":       "Call",
		"Task_Direction__c": string(in.Direction),
	}
	if c.taskRecordTypeID != "" {
		fields["RecordTypeId"] = c.taskRecordTypeID
	}
	if c.taskOwnerID != "" {
		fields["OwnerId"] = c.taskOwnerID
	}

	var res createResponse
	if err := c.do(ctx, "POST", "sobjects/Task", nil, fields, &res); err != nil {
		return "", err
	}
	if !res.Success || res.ID == "" {
		return "", apperr.Internal("salesforce did not confirm task creation")
	}
	return res.ID, nil
}

func defaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
