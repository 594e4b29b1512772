// Package export turns a group's submissions into downloadable artifacts:
// an xlsx spreadsheet and a zip archive of the submitted photos.
package export

import (
	"fmt"

	"github.com/mikepea/formlink/pkg/formlink/models"
	"github.com/xuri/excelize/v2"
)

// SheetName is the name of the only sheet in an exported workbook
const SheetName = "Submissions"

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05"

	// fixedDocTime stamps the workbook properties so equal input gives equal output
	fixedDocTime = "2000-01-01T00:00:00Z"
)

// Headers are the spreadsheet column labels, in column order
var Headers = []string{
	"First Name", "Last Name", "Middle Name", "Eye Color", "Hair Color",
	"Address", "Date of Birth", "Height", "Weight", "State",
	"City", "Zip Code", "Gender", "Organ Donor", "Corrective Lenses",
	"Submitted At",
}

var columnWidths = []float64{15, 15, 15, 12, 12, 25, 15, 10, 10, 8, 15, 12, 12, 12, 20, 20}

// centered columns: Date of Birth, Height, Weight
var centeredColumns = map[int]bool{7: true, 8: true, 9: true}

var thinBorder = []excelize.Border{
	{Type: "left", Color: "000000", Style: 1},
	{Type: "right", Color: "000000", Style: 1},
	{Type: "top", Color: "000000", Style: 1},
	{Type: "bottom", Color: "000000", Style: 1},
}

// BuildSpreadsheet renders forms as an xlsx workbook, one row per form in
// the order given. Callers sort the forms.
func BuildSpreadsheet(group models.Group, forms []models.Form) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetDocProps(&excelize.DocProperties{
		Creator:        "formlink",
		LastModifiedBy: "formlink",
		Title:          group.Name,
		Created:        fixedDocTime,
		Modified:       fixedDocTime,
	}); err != nil {
		return nil, fmt.Errorf("set properties: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF", Size: 12},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"FF7A00"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder,
	})
	if err != nil {
		return nil, err
	}
	cellStyle, err := f.NewStyle(&excelize.Style{Border: thinBorder})
	if err != nil {
		return nil, err
	}
	centeredStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "center"},
		Border:    thinBorder,
	})
	if err != nil {
		return nil, err
	}

	for i, width := range columnWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return nil, err
		}
	}

	header := make([]interface{}, len(Headers))
	for i, h := range Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, err
	}
	if err := styleRow(f, 1, func(int) int { return headerStyle }); err != nil {
		return nil, err
	}

	for i, form := range forms {
		row := i + 2
		cell, _ := excelize.CoordinatesToCellName(1, row)
		values := formRow(form)
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", row, err)
		}
		err := styleRow(f, row, func(col int) int {
			if centeredColumns[col] {
				return centeredStyle
			}
			return cellStyle
		})
		if err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func styleRow(f *excelize.File, row int, style func(col int) int) error {
	for col := 1; col <= len(Headers); col++ {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		if err := f.SetCellStyle(SheetName, cell, cell, style(col)); err != nil {
			return err
		}
	}
	return nil
}

// formRow returns the cell values for one form, in Headers order
func formRow(form models.Form) []interface{} {
	return []interface{}{
		form.FirstName,
		form.LastName,
		optional(form.MiddleName),
		form.EyeColor,
		form.HairColor,
		optional(form.Address),
		form.DateOfBirth.UTC().Format(dateLayout),
		form.Height,
		form.Weight,
		form.State,
		form.City,
		form.ZipCode,
		form.Gender,
		yesNo(form.OrganDonor),
		yesNo(form.CorrectiveLenses),
		form.SubmittedAt.UTC().Format(timestampLayout),
	}
}

func optional(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
