package observer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/clinical"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/auth"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/events"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/property"
)

// NationalIDType is the patient identifier type sent as id_number.
const NationalIDType = "49af6cdc-7968-4abb-bf46-de10d7f4859f"

var (
	ErrRMSLogin    = errors.New("rms login failed")
	ErrRMSRejected = errors.New("rms rejected patient profile")
)

// RMSSync registers newly created patients with the referral management
// system. It does nothing unless interop.rms.enabled is true.
type RMSSync struct {
	props    *property.Reader
	clinical *clinical.Service
	client   *http.Client
	logger   zerolog.Logger
}

func NewRMSSync(props *property.Reader, svc *clinical.Service, client *http.Client, logger zerolog.Logger) *RMSSync {
	if client == nil {
		client = auth.NewHTTPClient()
	}
	return &RMSSync{props: props, clinical: svc, client: client, logger: logger}
}

// Register subscribes to created patients only.
func (s *RMSSync) Register(reg *events.Registry) error {
	return reg.Register(string(clinical.KindPatient), "rms-registration", []events.Action{events.ActionCreated}, s.Handle)
}

type rmsProfile struct {
	FirstName       string `json:"first_name"`
	MiddleName      string `json:"middle_name"`
	LastName        string `json:"last_name"`
	PatientUniqueID string `json:"patient_unique_id"`
	IDNumber        string `json:"id_number"`
	Phone           string `json:"phone"`
	HospitalCode    string `json:"hospital_code"`
	DOB             string `json:"dob"`
	Gender          string `json:"gender"`
}

func gender(g string) string {
	switch strings.ToUpper(g) {
	case "M":
		return "Male"
	case "F":
		return "Female"
	}
	return g
}

func (s *RMSSync) profile(ctx context.Context, p *clinical.Patient) rmsProfile {
	out := rmsProfile{
		FirstName:       p.GivenName,
		MiddleName:      p.MiddleName,
		LastName:        p.FamilyName,
		PatientUniqueID: p.UUID,
		IDNumber:        p.Identifier(NationalIDType),
		Phone:           p.PhoneNumber,
		HospitalCode:    s.props.String(ctx, property.KeyDefaultFacilityMFLCode),
		Gender:          gender(p.Gender),
	}
	if p.BirthDate != nil {
		out.DOB = p.BirthDate.Format("2006-01-02")
	}
	return out
}

// Handle logs in to the RMS and posts the patient's profile.
func (s *RMSSync) Handle(ctx context.Context, principal auth.Principal, evt events.DomainEvent) error {
	if !s.props.Bool(ctx, property.KeyRMSEnabled) {
		s.logger.Debug().Str("uuid", evt.UUID).Msg("rms sync disabled")
		return nil
	}
	patient, err := s.clinical.Patient(ctx, principal, evt.UUID)
	if errors.Is(err, clinical.ErrNotFound) {
		s.logger.Error().Err(err).Str("uuid", evt.UUID).Msg("patient not found, dropping event")
		return nil
	}
	if err != nil {
		return err
	}

	base := strings.TrimRight(s.props.StringOr(ctx, property.KeyRMSEndpoint, property.DefaultRMSEndpoint), "/")
	token, err := s.login(ctx, base)
	if err != nil {
		return err
	}

	var result struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	status, err := s.post(ctx, base+"/create-patient-profile", token, s.profile(ctx, patient), &result)
	if err != nil {
		return fmt.Errorf("rms create profile: %w", err)
	}
	if status != http.StatusOK || !result.Success {
		return fmt.Errorf("%w: status %d: %s", ErrRMSRejected, status, result.Message)
	}
	s.logger.Info().Str("uuid", evt.UUID).Str("message", result.Message).Msg("patient registered with rms")
	return nil
}

func (s *RMSSync) login(ctx context.Context, base string) (string, error) {
	creds := map[string]string{
		"email":    s.props.String(ctx, property.KeyRMSUsername),
		"password": s.props.String(ctx, property.KeyRMSPassword),
	}
	var out struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expires_at"`
	}
	status, err := s.post(ctx, base+"/login", "", creds, &out)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRMSLogin, err)
	}
	if status != http.StatusOK || out.Token == "" {
		return "", fmt.Errorf("%w: status %d", ErrRMSLogin, status)
	}
	return out.Token, nil
}

// post sends body as JSON and decodes a 200 response into out.
func (s *RMSSync) post(ctx context.Context, url, token string, body, out interface{}) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}
