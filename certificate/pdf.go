package certificate

import (
	"bytes"
	"fmt"
	"io"

	"github.com/phpdave11/gofpdf"
	"github.com/warp/hub-engine/generic"
)

// IssuerName appears on the printed certificate.
const IssuerName = "Kano Digital Innovation Hub"

// RenderPDF writes a one-page landscape certificate for an approved request.
// verifyURL, when non-empty, is printed under the verification code.
func RenderPDF(w io.Writer, r *Request, verifyURL string) error {
	if r.Status != StatusApproved {
		return &generic.TransitionError{Entity: entityType, From: string(r.Status), To: "printed"}
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Certificate "+r.CertificateNumber, true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	pageW, pageH := pdf.GetPageSize()
	pdf.SetLineWidth(1.2)
	pdf.Rect(10, 10, pageW-20, pageH-20, "D")

	pdf.SetY(35)
	pdf.SetFont("Helvetica", "B", 28)
	pdf.CellFormat(0, 14, "CERTIFICATE OF "+upper(r.CertificateType), "", 1, "C", false, 0, "")

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "", 14)
	pdf.CellFormat(0, 8, "This is to certify that", "", 1, "C", false, 0, "")

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 24)
	pdf.CellFormat(0, 12, r.StudentName, "", 1, "C", false, 0, "")

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "", 14)
	pdf.CellFormat(0, 8, "has successfully completed", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, r.CourseTitle, "", 1, "C", false, 0, "")

	issued := "-"
	if r.ApprovedAt != nil {
		issued = r.ApprovedAt.Format("2 January 2006")
	}

	pdf.SetY(pageH - 55)
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 6, fmt.Sprintf("Certificate No: %s", r.CertificateNumber), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Issued: %s", issued), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Verification Code: %s", r.VerificationCode), "", 1, "C", false, 0, "")
	if verifyURL != "" {
		pdf.SetFont("Helvetica", "I", 9)
		pdf.CellFormat(0, 5, verifyURL, "", 1, "C", false, 0, "")
	}

	pdf.SetY(pageH - 28)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 6, IssuerName, "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return fmt.Errorf("render certificate %s: %w", r.ID, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

func upper(s string) string {
	if s == "" {
		return "COMPLETION"
	}
	return string(bytes.ToUpper([]byte(s)))
}
