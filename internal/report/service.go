package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/signintech/gopdf"
	"go.uber.org/zap"

	"clinical-intake-agent/internal/assessment"
	"clinical-intake-agent/internal/storage"
)

// Notifier pushes the finished report to the clinical team. Optional: a nil
// notifier disables the channel.
type Notifier interface {
	SendMessage(chatID int64, text string) error
	SendDocument(chatID int64, fileData []byte, fileName string) error
}

// Store is the slice of persistence the report path needs.
type Store interface {
	SaveReport(ctx context.Context, r *storage.Report) error
	ReportByAssessment(ctx context.Context, assessmentID uuid.UUID) (*storage.Report, error)
	SaveNotification(ctx context.Context, n *storage.Notification) error
}

type Service struct {
	store        Store
	notifier     Notifier
	doctorChatID int64
	logger       *zap.Logger
}

func NewService(store Store, notifier Notifier, doctorChatID int64, logger *zap.Logger) *Service {
	return &Service{
		store:        store,
		notifier:     notifier,
		doctorChatID: doctorChatID,
		logger:       logger,
	}
}

// Synthesize builds the clinical report for a completed interview, persists
// it and notifies the team. Idempotent per assessment: a second call for the
// same interview is a no-op.
func (s *Service) Synthesize(ctx context.Context, st *assessment.State) error {
	if existing, err := s.store.ReportByAssessment(ctx, st.ID); err == nil && existing != nil {
		s.logger.Info("report already exists, skipping synthesis",
			zap.String("assessment_id", st.ID.String()))
		return nil
	} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to check existing report: %w", err)
	}

	summary := buildSummary(st)
	patientName := patientDisplayName(st)

	pdfBytes, err := renderPDF(st, summary, patientName)
	if err != nil {
		// A rendering failure degrades to a text-only report; it must not
		// block the user-facing flow.
		s.logger.Warn("pdf rendering failed, storing text-only report",
			zap.String("assessment_id", st.ID.String()), zap.Error(err))
		pdfBytes = nil
	}

	rep := &storage.Report{
		ID:           uuid.New(),
		AssessmentID: st.ID,
		UserID:       st.UserID,
		PatientName:  patientName,
		Summary:      summary,
		PDF:          pdfBytes,
		Status:       "ready",
		CreatedAt:    time.Now(),
	}
	if err := s.store.SaveReport(ctx, rep); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	notification := &storage.Notification{
		ID:        uuid.New(),
		Recipient: "clinical-team",
		Title:     "Novo relatório de avaliação",
		Body:      fmt.Sprintf("Relatório da avaliação de %s disponível.", patientName),
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveNotification(ctx, notification); err != nil {
		s.logger.Warn("failed to save notification", zap.Error(err))
	}

	if s.notifier != nil && s.doctorChatID != 0 {
		fileName := fmt.Sprintf("relatorio_%s.pdf", rep.ID.String())
		if pdfBytes != nil {
			if err := s.notifier.SendDocument(s.doctorChatID, pdfBytes, fileName); err != nil {
				s.logger.Warn("failed to send report document", zap.Error(err))
			}
		} else if err := s.notifier.SendMessage(s.doctorChatID, summary); err != nil {
			s.logger.Warn("failed to send report message", zap.Error(err))
		}
	}

	return nil
}

func patientDisplayName(st *assessment.State) string {
	if st.UserEmail != "" {
		return st.UserEmail
	}
	if len(st.UserID) >= 8 {
		return "Paciente " + st.UserID[:8]
	}
	return "Paciente " + st.UserID
}

func buildSummary(st *assessment.State) string {
	var b strings.Builder
	b.WriteString("Relatório de Avaliação Clínica Inicial (IMRE)\n\n")
	fmt.Fprintf(&b, "Data: %s\n", time.Now().Format("02/01/2006 15:04"))
	fmt.Fprintf(&b, "Paciente: %s\n\n", patientDisplayName(st))

	b.WriteString("Investigação\n")
	fmt.Fprintf(&b, "Queixa principal: %s\n", orNone(st.Investigation.MainComplaint))
	fmt.Fprintf(&b, "Sintomas: %s\n", orNoneList(st.Investigation.Symptoms))
	fmt.Fprintf(&b, "História médica: %s\n", orNone(st.Investigation.MedicalHistory))
	fmt.Fprintf(&b, "História familiar: %s\n", orNone(st.Investigation.FamilyHistory))
	fmt.Fprintf(&b, "Medicações: %s\n", orNone(st.Investigation.Medications))
	fmt.Fprintf(&b, "Hábitos de vida: %s\n\n", orNone(st.Investigation.Lifestyle))

	fmt.Fprintf(&b, "Metodologia\n%s\n\n", orNoneList(st.Methodology.DiagnosticMethods))
	fmt.Fprintf(&b, "Resultado\n%s\n\n", orNoneList(st.Result.ClinicalFindings))
	fmt.Fprintf(&b, "Evolução\n%s\n", orNoneList(st.Evolution.CarePlan))
	return b.String()
}

func orNone(v string) string {
	if v == "" {
		return "Não informado"
	}
	return v
}

func orNoneList(v []string) string {
	if len(v) == 0 {
		return "Não informado"
	}
	return strings.Join(v, "; ")
}

// fontPaths covers the common DejaVu locations; the font carries the accents
// the summaries use.
var fontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

func renderPDF(st *assessment.State, summary, patientName string) ([]byte, error) {
	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	var fontErr error
	fontLoaded := false
	for _, path := range fontPaths {
		if err := pdf.AddTTFFont("DejaVu", path); err == nil {
			fontLoaded = true
			break
		} else {
			fontErr = err
		}
	}
	if !fontLoaded {
		return nil, fmt.Errorf("failed to load font for PDF: %w", fontErr)
	}

	if err := pdf.SetFont("DejaVu", "", 18); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "Relatório de Avaliação Clínica (IMRE)")
	pdf.Br(28)

	if err := pdf.SetFont("DejaVu", "", 11); err != nil {
		return nil, err
	}
	pdf.Cell(nil, fmt.Sprintf("Paciente: %s", patientName))
	pdf.Br(14)
	pdf.Cell(nil, fmt.Sprintf("Avaliação: %s", st.ID.String()))
	pdf.Br(14)
	pdf.Cell(nil, fmt.Sprintf("Data: %s", time.Now().Format("02.01.2006 15:04")))
	pdf.Br(22)

	for _, line := range strings.Split(summary, "\n") {
		if line == "" {
			pdf.Br(8)
			continue
		}
		wrapped, _ := pdf.SplitText(line, 500)
		for _, l := range wrapped {
			pdf.Cell(nil, l)
			pdf.Br(13)
		}
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}
