package sheets

import (
	"context"
	"strings"
)

// MockSheetsAPI implements SheetsAPI for testing
type MockSheetsAPI struct {
	sheets          map[string]bool            // Track which sheets exist
	data            map[string][][]interface{} // Store sheet data
	shouldError     error
	updateFailures  []error // returned, in order, by the next UpdateRange calls
	calls           []string
	lastClearRange  string
	lastUpdateRange string
	lastUpdateData  [][]interface{}
	lastCapacity    [2]int
}

func NewMockSheetsAPI() *MockSheetsAPI {
	return &MockSheetsAPI{
		sheets: make(map[string]bool),
		data:   make(map[string][][]interface{}),
	}
}

// sheetNameOf extracts the sheet name from an A1 range (before the '!')
func sheetNameOf(range_ string) string {
	sheetName := range_
	if exclamationIndex := strings.Index(range_, "!"); exclamationIndex != -1 {
		sheetName = range_[:exclamationIndex]
	}
	return strings.Trim(sheetName, "'\"")
}

func (m *MockSheetsAPI) UpdateRange(ctx context.Context, spreadsheetID, range_ string, values [][]interface{}) error {
	m.calls = append(m.calls, "UpdateRange")
	if m.shouldError != nil {
		return m.shouldError
	}
	if len(m.updateFailures) > 0 {
		err := m.updateFailures[0]
		m.updateFailures = m.updateFailures[1:]
		return err
	}
	m.lastUpdateRange = range_
	m.lastUpdateData = values
	m.data[sheetNameOf(range_)] = values
	return nil
}

func (m *MockSheetsAPI) ClearRange(ctx context.Context, spreadsheetID, range_ string) error {
	m.calls = append(m.calls, "ClearRange")
	if m.shouldError != nil {
		return m.shouldError
	}
	m.lastClearRange = range_
	delete(m.data, sheetNameOf(range_))
	return nil
}

func (m *MockSheetsAPI) CreateSheet(ctx context.Context, spreadsheetID, sheetName string) error {
	m.calls = append(m.calls, "CreateSheet")
	if m.shouldError != nil {
		return m.shouldError
	}
	m.sheets[sheetName] = true
	return nil
}

func (m *MockSheetsAPI) SheetExists(ctx context.Context, spreadsheetID, sheetName string) (bool, error) {
	m.calls = append(m.calls, "SheetExists")
	if m.shouldError != nil {
		return false, m.shouldError
	}
	return m.sheets[sheetName], nil
}

func (m *MockSheetsAPI) EnsureSheetCapacity(ctx context.Context, spreadsheetID, sheetName string, requiredRows, requiredCols int) error {
	m.calls = append(m.calls, "EnsureSheetCapacity")
	if m.shouldError != nil {
		return m.shouldError
	}
	m.lastCapacity = [2]int{requiredRows, requiredCols}
	return nil
}

func (m *MockSheetsAPI) GetSheetData(sheetName string) [][]interface{} {
	return m.data[sheetName]
}
