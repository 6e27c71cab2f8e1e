package forge

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/efp"
	"github.com/xuri/excelize/v2"
)

// scalarsSheet is the dedicated worksheet holding model scalars as
// name | value rows
const scalarsSheet = "Scalars"

// Export renders a model as a spreadsheet workbook: one worksheet per
// table with the column names in row 1 and data from row 2, row-wise
// formulas emitted once per row in native form, aggregate formulas
// emitted once into row 2, and scalars on a dedicated Scalars sheet.
// evaluate the model first so literal values are present; formula
// columns are exported as formulas either way.
func Export(m *Model) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	x := &exporter{model: m, file: f}
	if err := x.layout(); err != nil {
		return nil, err
	}
	if err := x.writeTables(); err != nil {
		return nil, err
	}
	if err := x.writeScalars(); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, NewModelError(KindTranslation, "workbook serialization failed: "+err.Error())
	}
	return buf.Bytes(), nil
}

type exporter struct {
	model *Model
	file  *excelize.File

	sheetFor  map[string]string            // table name -> sheet name
	letterFor map[string]map[string]string // table name -> column name -> letter
	rowsFor   map[string]int               // table name -> data row count
	scalarRow map[string]int               // scalar path -> row on the Scalars sheet
}

// layout assigns sheets, column letters, and scalar rows before any
// cell is written, so formula translation can reference them
func (x *exporter) layout() error {
	x.sheetFor = make(map[string]string)
	x.letterFor = make(map[string]map[string]string)
	x.rowsFor = make(map[string]int)
	x.scalarRow = make(map[string]int)

	first := true
	addSheet := func(name string) error {
		if first {
			first = false
			return x.file.SetSheetName("Sheet1", name)
		}
		_, err := x.file.NewSheet(name)
		return err
	}

	for _, t := range x.model.Tables {
		sheet := sanitizeSheetName(t.Name)
		if err := addSheet(sheet); err != nil {
			return NewModelError(KindTranslation, "cannot create sheet: "+err.Error())
		}
		x.sheetFor[t.Name] = sheet

		letters := make(map[string]string)
		for i, c := range t.Columns {
			letter, err := excelize.ColumnNumberToName(i + 1)
			if err != nil {
				return NewModelError(KindTranslation, err.Error())
			}
			letters[c.Name] = letter
		}
		x.letterFor[t.Name] = letters

		rows := t.RowCount()
		if rows == 0 {
			rows = 1
		}
		x.rowsFor[t.Name] = rows
	}

	if len(x.model.Scalars) > 0 {
		if err := addSheet(scalarsSheet); err != nil {
			return NewModelError(KindTranslation, "cannot create sheet: "+err.Error())
		}
		for i, s := range x.model.Scalars {
			x.scalarRow[s.Name] = i + 2
		}
	}
	return nil
}

func (x *exporter) writeTables() error {
	for _, t := range x.model.Tables {
		sheet := x.sheetFor[t.Name]
		for i, c := range t.Columns {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			if err := x.file.SetCellStr(sheet, cell, c.Name); err != nil {
				return NewModelError(KindTranslation, err.Error())
			}

			switch {
			case c.IsFormula() && c.Aggregate:
				formula, err := x.translate(t, c.Expr, 0, true)
				if err != nil {
					return errorAt(err, t.Name+"."+c.Name)
				}
				cell, _ := excelize.CoordinatesToCellName(i+1, 2)
				if err := x.file.SetCellFormula(sheet, cell, formula); err != nil {
					return NewModelError(KindTranslation, err.Error())
				}

			case c.IsFormula():
				for r := 0; r < x.rowsFor[t.Name]; r++ {
					formula, err := x.translate(t, c.Expr, r, false)
					if err != nil {
						return errorAt(err, t.Name+"."+c.Name)
					}
					cell, _ := excelize.CoordinatesToCellName(i+1, r+2)
					if err := x.file.SetCellFormula(sheet, cell, formula); err != nil {
						return NewModelError(KindTranslation, err.Error())
					}
				}

			default:
				for r, v := range c.Data.Values {
					cell, _ := excelize.CoordinatesToCellName(i+1, r+2)
					if err := x.writeValue(sheet, cell, c.Data.Type, v); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// writeValue stores a literal cell. dates travel as ISO text so the
// importer can recover the column type without style inspection.
func (x *exporter) writeValue(sheet, cell string, t ValueType, v Value) error {
	var err error
	switch t {
	case TypeDate:
		if serial, ok := v.(float64); ok {
			err = x.file.SetCellStr(sheet, cell, formatDateSerial(serial))
		}
	case TypeError:
		err = x.file.SetCellStr(sheet, cell, toText(v))
	default:
		if cellErr := checkForError(v); cellErr != nil {
			err = x.file.SetCellStr(sheet, cell, cellErr.Error())
		} else {
			err = x.file.SetCellValue(sheet, cell, v)
		}
	}
	if err != nil {
		return NewModelError(KindTranslation, err.Error())
	}
	return nil
}

func (x *exporter) writeScalars() error {
	if len(x.model.Scalars) == 0 {
		return nil
	}
	if err := x.file.SetCellStr(scalarsSheet, "A1", "name"); err != nil {
		return NewModelError(KindTranslation, err.Error())
	}
	if err := x.file.SetCellStr(scalarsSheet, "B1", "value"); err != nil {
		return NewModelError(KindTranslation, err.Error())
	}

	for _, s := range x.model.Scalars {
		row := x.scalarRow[s.Name]
		if err := x.file.SetCellStr(scalarsSheet, "A"+strconv.Itoa(row), s.Name); err != nil {
			return NewModelError(KindTranslation, err.Error())
		}
		valueCell := "B" + strconv.Itoa(row)
		if s.IsFormula() {
			formula, err := x.translate(nil, s.Expr, 0, true)
			if err != nil {
				return errorAt(err, s.Name)
			}
			if err := x.file.SetCellFormula(scalarsSheet, valueCell, formula); err != nil {
				return NewModelError(KindTranslation, err.Error())
			}
		} else if s.Value != nil {
			if err := x.file.SetCellValue(scalarsSheet, valueCell, s.Value); err != nil {
				return NewModelError(KindTranslation, err.Error())
			}
		}
	}
	return nil
}

// translate renders an expression tree in the workbook's native
// formula dialect. host is the table owning the formula (nil for
// scalars), row the zero-based data row for row-wise emission.
func (x *exporter) translate(host *Table, e Expr, row int, aggregate bool) (string, *ModelError) {
	switch n := e.(type) {
	case *NumberNode, *BooleanNode:
		return e.String(), nil
	case *StringNode:
		return n.String(), nil
	case *GroupNode:
		inner, err := x.translate(host, n.Inner, row, aggregate)
		if err != nil {
			return "", err
		}
		return "(" + inner + ")", nil
	case *UnaryNode:
		operand, err := x.translate(host, n.Operand, row, aggregate)
		if err != nil {
			return "", err
		}
		switch n.Op {
		case UnOpMinus:
			return "-" + operand, nil
		case UnOpPlus:
			return "+" + operand, nil
		default:
			return operand + "%", nil
		}
	case *BinaryNode:
		left, err := x.translate(host, n.Left, row, aggregate)
		if err != nil {
			return "", err
		}
		right, err := x.translate(host, n.Right, row, aggregate)
		if err != nil {
			return "", err
		}
		op := binOpStrings[n.Op]
		// + concatenates text in the model dialect; natively only & does
		if n.Op == BinOpAdd && (x.exprIsText(host, n.Left) || x.exprIsText(host, n.Right)) {
			op = binOpStrings[BinOpConcat]
		}
		return left + op + right, nil
	case *CallNode:
		parts := make([]string, len(n.Args))
		for i, a := range n.Args {
			// aggregate functions consume whole columns even inside a
			// row-wise formula host
			argAggregate := aggregate || isAggregateFunction(n.Name)
			part, err := x.translate(host, a, row, argAggregate)
			if err != nil {
				return "", err
			}
			parts[i] = part
		}
		return n.Name + "(" + strings.Join(parts, ",") + ")", nil
	case *ReferenceNode:
		return x.translateRef(host, n, row, aggregate)
	case *IndexNode:
		return "", NewModelError(KindTranslation,
			fmt.Sprintf("construct %q has no workbook equivalent", n.String()))
	case *ArrayNode:
		return "", NewModelError(KindTranslation,
			fmt.Sprintf("construct %q has no workbook equivalent", n.String()))
	default:
		return "", NewModelError(KindTranslation, "unsupported expression")
	}
}

// textFunctions are the built-ins whose result is always text
var textFunctions = map[string]bool{
	"CONCATENATE": true,
	"LEFT":        true,
	"RIGHT":       true,
	"MID":         true,
	"UPPER":       true,
	"LOWER":       true,
	"TRIM":        true,
	"SUBSTITUTE":  true,
	"TEXTJOIN":    true,
	"TEXT":        true,
}

// exprIsText infers whether an expression yields text: string
// literals, references to text columns or scalars, concatenations, and
// the text functions
func (x *exporter) exprIsText(host *Table, e Expr) bool {
	switch n := e.(type) {
	case *StringNode:
		return true
	case *GroupNode:
		return x.exprIsText(host, n.Inner)
	case *ReferenceNode:
		res, err := x.model.resolveRef(host, n)
		if err != nil {
			return false
		}
		if res.Scalar != nil {
			return isPlainText(res.Scalar.Value)
		}
		return res.Column.Data != nil && res.Column.Data.Type == TypeText
	case *BinaryNode:
		if n.Op == BinOpConcat {
			return true
		}
		if n.Op == BinOpAdd {
			return x.exprIsText(host, n.Left) || x.exprIsText(host, n.Right)
		}
		return false
	case *CallNode:
		return textFunctions[n.Name]
	default:
		return false
	}
}

// translateRef maps a model reference onto the sheet grid: scalars to
// their value cell, row-wise column references to same-row cells, and
// aggregate column references to full data ranges.
func (x *exporter) translateRef(host *Table, ref *ReferenceNode, row int, aggregate bool) (string, *ModelError) {
	res, err := x.model.resolveRef(host, ref)
	if err != nil {
		return "", err
	}

	if res.Scalar != nil {
		r, ok := x.scalarRow[res.Scalar.Name]
		if !ok {
			return "", NewModelError(KindTranslation, "scalar missing from layout: "+res.Scalar.Name)
		}
		return scalarsSheet + "!B" + strconv.Itoa(r), nil
	}

	sheet := x.sheetFor[res.Table.Name]
	letter := x.letterFor[res.Table.Name][res.Column.Name]
	qualify := host == nil || res.Table.Name != host.Name

	if aggregate && !res.Column.Aggregate {
		rows := x.rowsFor[res.Table.Name]
		r := fmt.Sprintf("%s2:%s%d", letter, letter, rows+1)
		if qualify {
			r = quoteSheet(sheet) + "!" + r
		}
		return r, nil
	}

	cellRow := row + 2
	if res.Column.Aggregate {
		cellRow = 2 // aggregate results live in row 2
	}
	cell := fmt.Sprintf("%s%d", letter, cellRow)
	if qualify {
		cell = quoteSheet(sheet) + "!" + cell
	}
	return cell, nil
}

// sanitizeSheetName makes a table name a legal worksheet name
func sanitizeSheetName(name string) string {
	replacer := strings.NewReplacer("[", "_", "]", "_", ":", "_", "*", "_", "?", "_", "/", "_", "\\", "_")
	clean := replacer.Replace(name)
	if len(clean) > 31 {
		clean = clean[:31]
	}
	return clean
}

// quoteSheet wraps sheet names that need quoting in formulas
func quoteSheet(name string) string {
	if strings.ContainsAny(name, " -") {
		return "'" + name + "'"
	}
	return name
}

// Import reads a workbook produced by Export (or laid out the same
// way) back into a model: every sheet is a table with its header in
// row 1, the Scalars sheet becomes scalars, and native formulas are
// tokenized and rewritten to the model dialect. import(export(m)) is
// structurally equivalent to m for every supported construct.
func Import(data []byte) (*Model, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, NewModelError(KindTranslation, "cannot open workbook: "+err.Error())
	}
	defer f.Close()

	im := &importer{file: f}
	if err := im.scan(); err != nil {
		return nil, err
	}
	return im.build()
}

type importer struct {
	file *excelize.File

	sheets     []string
	colByRef   map[string]map[string]string // sheet -> column letter -> column name
	scalarRows map[int]string               // Scalars sheet row -> scalar path
}

// scan builds the reverse lookup maps for every sheet before any
// formula is translated, since formulas reference across sheets
func (im *importer) scan() *ModelError {
	im.colByRef = make(map[string]map[string]string)
	im.scalarRows = make(map[int]string)

	for _, sheet := range im.file.GetSheetList() {
		im.sheets = append(im.sheets, sheet)
		rows, err := im.file.GetRows(sheet)
		if err != nil {
			return NewModelError(KindTranslation, err.Error())
		}
		if len(rows) == 0 {
			continue
		}

		if sheet == scalarsSheet {
			for r := 1; r < len(rows); r++ {
				if len(rows[r]) > 0 && rows[r][0] != "" {
					im.scalarRows[r+1] = rows[r][0]
				}
			}
			continue
		}

		byRef := make(map[string]string)
		for i, name := range rows[0] {
			letter, convErr := excelize.ColumnNumberToName(i + 1)
			if convErr != nil {
				return NewModelError(KindTranslation, convErr.Error())
			}
			byRef[letter] = name
		}
		im.colByRef[sheet] = byRef
	}
	return nil
}

func (im *importer) build() (*Model, error) {
	m := NewModel()
	var errs []error

	for _, sheet := range im.sheets {
		if sheet == scalarsSheet {
			if err := im.buildScalars(m); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		t, tableErrs := im.buildTable(sheet)
		errs = append(errs, tableErrs...)
		if t != nil {
			m.AddTable(t)
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return m, nil
}

func (im *importer) buildScalars(m *Model) error {
	rows, err := im.file.GetRows(scalarsSheet)
	if err != nil {
		return NewModelError(KindTranslation, err.Error())
	}
	for r := 1; r < len(rows); r++ {
		if len(rows[r]) == 0 || rows[r][0] == "" {
			continue
		}
		name := rows[r][0]
		s := &Scalar{Name: name}

		cell := "B" + strconv.Itoa(r+1)
		native, _ := im.file.GetCellFormula(scalarsSheet, cell)
		if native != "" {
			text, terr := im.reverseTranslate(scalarsSheet, native)
			if terr != nil {
				return errorAt(terr, name)
			}
			expr, perr := ParseFormula(text)
			if perr != nil {
				return errorAt(perr, name)
			}
			s.Formula = "=" + expr.String()
			s.Expr = expr
		} else if len(rows[r]) > 1 && rows[r][1] != "" {
			s.Value = parseCellText(rows[r][1])
		}
		m.AddScalar(s)
	}
	return nil
}

func (im *importer) buildTable(sheet string) (*Table, []error) {
	var errs []error
	rows, err := im.file.GetRows(sheet)
	if err != nil {
		return nil, []error{NewModelError(KindTranslation, err.Error())}
	}
	if len(rows) == 0 {
		return nil, nil
	}

	t := NewTable(sheet)
	dataRows := len(rows) - 1

	for i, colName := range rows[0] {
		if colName == "" {
			continue
		}
		letter, _ := excelize.ColumnNumberToName(i + 1)
		fullName := sheet + "." + colName

		firstCell := letter + "2"
		native, _ := im.file.GetCellFormula(sheet, firstCell)
		if native != "" {
			col, cerr := im.importFormulaColumn(sheet, colName, letter, native, dataRows)
			if cerr != nil {
				errs = append(errs, errorAt(cerr, fullName))
				continue
			}
			t.AddColumn(col)
			continue
		}

		arr, cerr := im.importLiteralColumn(rows, i)
		if cerr != nil {
			errs = append(errs, errorAt(cerr, fullName))
			continue
		}
		if arr != nil {
			t.AddColumn(&Column{Name: colName, Data: arr})
		}
	}
	return t, errs
}

// importFormulaColumn rewrites a native formula into the model dialect
// and decides its kind: a formula repeated down the column is row-wise,
// a single formula over ranges is aggregate
func (im *importer) importFormulaColumn(sheet, colName, letter, native string, dataRows int) (*Column, *ModelError) {
	text, err := im.reverseTranslate(sheet, native)
	if err != nil {
		return nil, err
	}
	expr, perr := ParseFormula(text)
	if perr != nil {
		return nil, perr
	}

	aggregate := true
	if dataRows > 1 {
		below, _ := im.file.GetCellFormula(sheet, letter+"3")
		aggregate = below == ""
	} else {
		// one data row: ranges in the native text mark an aggregate
		aggregate = strings.Contains(native, ":")
	}

	return &Column{
		Name:      colName,
		Formula:   "=" + expr.String(),
		Expr:      expr,
		Aggregate: aggregate,
	}, nil
}

// importLiteralColumn types a literal column from its first populated
// cell and converts every row
func (im *importer) importLiteralColumn(rows [][]string, colIdx int) (*TypedArray, *ModelError) {
	var raw []string
	for r := 1; r < len(rows); r++ {
		v := ""
		if colIdx < len(rows[r]) {
			v = rows[r][colIdx]
		}
		raw = append(raw, v)
	}
	// trim trailing blanks left by longer sibling columns
	for len(raw) > 0 && raw[len(raw)-1] == "" {
		raw = raw[:len(raw)-1]
	}
	if len(raw) == 0 {
		return nil, nil
	}

	elemType := detectCellType(raw[0])
	values := make([]Value, len(raw))
	for i, s := range raw {
		v, ok := convertCellText(s, elemType)
		if !ok {
			return nil, &ModelError{
				Kind:    KindTypeMismatch,
				Message: fmt.Sprintf("row %d: %q is not a valid %s", i, s, elemType),
			}
		}
		values[i] = v
	}
	return &TypedArray{Type: elemType, Values: values}, nil
}

// detectCellType classifies a formatted cell string
func detectCellType(s string) ValueType {
	if _, ok := parseDateText(s); ok {
		return TypeDate
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return TypeNumber
	}
	if s == "TRUE" || s == "FALSE" {
		return TypeBoolean
	}
	return TypeText
}

func convertCellText(s string, t ValueType) (Value, bool) {
	switch t {
	case TypeNumber:
		num, err := strconv.ParseFloat(s, 64)
		return num, err == nil
	case TypeDate:
		serial, ok := parseDateText(s)
		return serial, ok
	case TypeBoolean:
		return s == "TRUE", s == "TRUE" || s == "FALSE"
	default:
		return s, true
	}
}

func parseCellText(s string) Value {
	switch detectCellType(s) {
	case TypeNumber:
		num, _ := strconv.ParseFloat(s, 64)
		return num
	case TypeBoolean:
		return s == "TRUE"
	default:
		return s
	}
}

// reverseTranslate rewrites a native workbook formula into the model
// dialect by walking its token stream and mapping cell and range
// operands back to table.column and scalar names
func (im *importer) reverseTranslate(currentSheet, native string) (string, *ModelError) {
	parser := efp.ExcelParser()
	tokens := parser.Parse(native)

	var b strings.Builder
	for _, tok := range tokens {
		switch tok.TType {
		case efp.TokenTypeOperand:
			switch tok.TSubType {
			case efp.TokenSubTypeRange:
				name, err := im.refToName(currentSheet, tok.TValue)
				if err != nil {
					return "", err
				}
				b.WriteString(name)
			case efp.TokenSubTypeText:
				b.WriteString("\"" + strings.ReplaceAll(tok.TValue, "\"", "\"\"") + "\"")
			default:
				b.WriteString(tok.TValue)
			}
		case efp.TokenTypeFunction:
			if tok.TSubType == efp.TokenSubTypeStart {
				b.WriteString(tok.TValue + "(")
			} else {
				b.WriteString(")")
			}
		case efp.TokenTypeSubexpression:
			if tok.TSubType == efp.TokenSubTypeStart {
				b.WriteString("(")
			} else {
				b.WriteString(")")
			}
		case efp.TokenTypeArgument:
			b.WriteString(",")
		case efp.TokenTypeOperatorInfix, efp.TokenTypeOperatorPrefix, efp.TokenTypeOperatorPostfix:
			b.WriteString(tok.TValue)
		case efp.TokenTypeWhitespace:
			// dropped
		default:
			return "", NewModelError(KindTranslation,
				fmt.Sprintf("construct %q has no model equivalent", tok.TValue))
		}
	}
	return b.String(), nil
}

// refToName maps a native cell or range reference back to a model name
func (im *importer) refToName(currentSheet, ref string) (string, *ModelError) {
	sheet := currentSheet
	rest := ref
	if before, after, found := strings.Cut(ref, "!"); found {
		sheet = strings.Trim(before, "'")
		rest = after
	}

	// a range or a cell both identify the column by their first cell
	firstCell := rest
	if before, _, found := strings.Cut(rest, ":"); found {
		firstCell = before
	}
	col, row, err := excelize.CellNameToCoordinates(strings.ReplaceAll(firstCell, "$", ""))
	if err != nil {
		return "", NewModelError(KindTranslation, fmt.Sprintf("reference %q has no model equivalent", ref))
	}

	if sheet == scalarsSheet {
		name, ok := im.scalarRows[row]
		if !ok {
			return "", NewModelError(KindTranslation, fmt.Sprintf("no scalar at %s row %d", scalarsSheet, row))
		}
		return name, nil
	}

	letter, _ := excelize.ColumnNumberToName(col)
	colName, ok := im.colByRef[sheet][letter]
	if !ok || colName == "" {
		return "", NewModelError(KindTranslation, fmt.Sprintf("reference %q points outside any table column", ref))
	}
	if sheet == currentSheet {
		return colName, nil
	}
	return sheet + "." + colName, nil
}
