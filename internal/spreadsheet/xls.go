package spreadsheet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/extrame/xls"
)

// compoundSignature starts every OLE2 compound document, the container of
// BIFF .xls workbooks
var compoundSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

const (
	headerSize     = 512
	sectorSize     = 512
	miniSectorSize = 64
	dirEntrySize   = 128
	endOfChain     = 0xFFFFFFFE

	dirEmpty = 0
	dirRoot  = 5

	biffSST = 0x00FC

	// BIFF8 sheets are at most 256 columns wide
	maxXLSColumns = 256
)

func isCompoundFile(data []byte) bool {
	return bytes.HasPrefix(data, compoundSignature)
}

// compoundHeader is the fixed 512-byte header of a compound document
type compoundHeader struct {
	Signature    [8]byte
	_            [16]byte
	MinorVersion uint16
	MajorVersion uint16
	ByteOrder    uint16
	SectorShift  uint16
	MiniShift    uint16
	_            [10]byte
	FATSectors   uint32
	DirStart     uint32
	_            uint32
	MiniCutoff   uint32
	MiniFATStart uint32
	MiniFATCount uint32
	DIFATStart   uint32
	DIFATCount   uint32
	DIFAT        [109]uint32
}

type dirEntry struct {
	name  string
	typ   byte
	start uint32
	size  uint32
}

// compoundFile walks a compound document the way the BIFF reader will, so
// that chains which would stall or abort that reader are rejected up front
type compoundFile struct {
	data    []byte
	header  compoundHeader
	sectors int
	fat     []uint32
	miniFAT []uint32
}

// checkCompoundFile verifies the allocation tables and the sector chains of
// the directory and the workbook stream
func checkCompoundFile(data []byte) error {
	c := &compoundFile{data: data}
	if len(data) < headerSize {
		return errors.New("truncated compound file header")
	}
	if err := binary.Read(bytes.NewReader(data[:headerSize]), binary.LittleEndian, &c.header); err != nil {
		return err
	}
	h := c.header
	if h.ByteOrder != 0xFFFE || h.SectorShift != 9 || h.MiniShift != 6 {
		return fmt.Errorf("unsupported compound file layout (byte order %#x, sector shift %d)", h.ByteOrder, h.SectorShift)
	}
	c.sectors = (len(data)-headerSize)/sectorSize + 1

	if err := c.readFAT(); err != nil {
		return err
	}
	if err := checkChain(c.fat, h.DirStart); err != nil {
		return fmt.Errorf("directory: %w", err)
	}
	entries, err := c.directory()
	if err != nil {
		return err
	}

	var book, root *dirEntry
	for i := range entries {
		switch entries[i].name {
		case "Workbook", "Book":
			book = &entries[i]
		case "Root Entry":
			root = &entries[i]
		}
	}
	if book == nil {
		return errors.New("no Workbook stream")
	}

	var stream []byte
	if book.size < h.MiniCutoff {
		if root == nil {
			return errors.New("short workbook stream without a root entry")
		}
		if err := checkChain(c.fat, root.start); err != nil {
			return fmt.Errorf("mini stream: %w", err)
		}
		if err := checkChain(c.miniFAT, book.start); err != nil {
			return fmt.Errorf("workbook stream: %w", err)
		}
		stream = c.miniStream(c.stream(c.fat, root.start), book.start)
	} else {
		if err := checkChain(c.fat, book.start); err != nil {
			return fmt.Errorf("workbook stream: %w", err)
		}
		stream = c.stream(c.fat, book.start)
	}
	return checkStrings(stream)
}

// sector returns sector sid, zero filled past the end of the file
func (c *compoundFile) sector(sid uint32) []byte {
	out := make([]byte, sectorSize)
	pos := int64(uint32(headerSize) + sid*sectorSize)
	if pos < int64(len(c.data)) {
		copy(out, c.data[pos:])
	}
	return out
}

func sectorValues(sector []byte, n int) []uint32 {
	values := make([]uint32, n)
	for i := range values {
		values[i] = binary.LittleEndian.Uint32(sector[i*4:])
	}
	return values
}

func (c *compoundFile) readFAT() error {
	h := c.header
	count := h.FATSectors
	if count > uint32(len(h.DIFAT)) {
		count = uint32(len(h.DIFAT))
	}
	for i := uint32(0); i < count; i++ {
		c.fat = append(c.fat, sectorValues(c.sector(h.DIFAT[i]), sectorSize/4)...)
	}

	steps := 0
	for sid := h.DIFATStart; sid != endOfChain; {
		if steps++; steps > c.sectors || steps > int(h.DIFATCount) {
			return errors.New("master allocation table does not terminate")
		}
		difat := c.sector(sid)
		for _, fatSector := range sectorValues(difat, sectorSize/4-1) {
			c.fat = append(c.fat, sectorValues(c.sector(fatSector), sectorSize/4)...)
		}
		sid = binary.LittleEndian.Uint32(difat[sectorSize-4:])
	}

	if h.MiniFATCount > uint32(c.sectors) {
		return fmt.Errorf("mini allocation table claims %d sectors", h.MiniFATCount)
	}
	if h.MiniFATStart != endOfChain {
		// the reader takes the first mini table sector once per claimed sector
		values := sectorValues(c.sector(h.MiniFATStart), sectorSize/4-1)
		for i := uint32(0); i < h.MiniFATCount; i++ {
			c.miniFAT = append(c.miniFAT, values...)
		}
	}
	return nil
}

// checkChain requires the chain from start to stay inside table and to end
func checkChain(table []uint32, start uint32) error {
	steps := 0
	for sid := start; sid != endOfChain; sid = table[sid] {
		if int64(sid) >= int64(len(table)) {
			return fmt.Errorf("sector %#x is outside the allocation table", sid)
		}
		if steps++; steps > len(table) {
			return errors.New("sector chain loops")
		}
	}
	return nil
}

// stream concatenates the sectors of a chain already accepted by checkChain
func (c *compoundFile) stream(table []uint32, start uint32) []byte {
	var out []byte
	for sid := start; sid != endOfChain; sid = table[sid] {
		out = append(out, c.sector(sid)...)
	}
	return out
}

func (c *compoundFile) miniStream(container []byte, start uint32) []byte {
	var out []byte
	for sid := start; sid != endOfChain; sid = c.miniFAT[sid] {
		chunk := make([]byte, miniSectorSize)
		if pos := int64(sid) * miniSectorSize; pos < int64(len(container)) {
			copy(chunk, container[pos:])
		}
		out = append(out, chunk...)
	}
	return out
}

// directory lists entries up to the first empty one
func (c *compoundFile) directory() ([]dirEntry, error) {
	dir := c.stream(c.fat, c.header.DirStart)
	var entries []dirEntry
	for off := 0; off+dirEntrySize <= len(dir); off += dirEntrySize {
		raw := dir[off : off+dirEntrySize]
		typ := raw[66]
		if typ == dirEmpty {
			break
		}
		nameSize := int(binary.LittleEndian.Uint16(raw[64:]))
		if nameSize < 2 || nameSize > 64 || nameSize%2 != 0 {
			return nil, fmt.Errorf("directory entry %d has a bad name length %d", off/dirEntrySize, nameSize)
		}
		name := make([]rune, 0, nameSize/2-1)
		for i := 0; i < nameSize-2; i += 2 {
			name = append(name, rune(binary.LittleEndian.Uint16(raw[i:])))
		}
		entries = append(entries, dirEntry{
			name:  string(name),
			typ:   typ,
			start: binary.LittleEndian.Uint32(raw[116:]),
			size:  binary.LittleEndian.Uint32(raw[120:]),
		})
	}
	if len(entries) == 0 || entries[0].typ != dirRoot {
		return nil, errors.New("directory has no root entry")
	}
	return entries, nil
}

// checkStrings bounds the shared string table, which the reader allocates
// up front from the declared count
func checkStrings(stream []byte) error {
	for off := 0; off+4 <= len(stream); {
		id := binary.LittleEndian.Uint16(stream[off:])
		size := int(binary.LittleEndian.Uint16(stream[off+2:]))
		body := off + 4
		if id == biffSST && size >= 8 && body+8 <= len(stream) {
			// every entry takes at least three bytes
			if count := binary.LittleEndian.Uint32(stream[body+4:]); int64(count)*3 > int64(len(stream)) {
				return fmt.Errorf("shared string table claims %d strings", count)
			}
		}
		off = body + size
	}
	return nil
}

// readXLS returns the name and the cell grid of the first worksheet of a
// BIFF8 workbook
func readXLS(data []byte) (name string, rows [][]string, err error) {
	if err := checkCompoundFile(data); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
	}
	defer func() {
		if r := recover(); r != nil {
			name, rows, err = "", nil, fmt.Errorf("%w: unreadable .xls workbook: %v", ErrMalformedFile, r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return "", nil, fmt.Errorf("%w: failed to open Excel file: %v", ErrMalformedFile, err)
	}
	if wb == nil {
		return "", nil, fmt.Errorf("%w: no Workbook stream", ErrMalformedFile)
	}
	if wb.NumSheets() == 0 {
		return "", nil, fmt.Errorf("%w: no sheets found in Excel file", ErrEmptySheet)
	}

	sheet := wb.GetSheet(0)
	header := xlsCells(xlsRow(sheet, 0), maxXLSColumns)
	width := len(header)
	for width > 0 && strings.TrimSpace(header[width-1]) == "" {
		width--
	}
	rows = make([][]string, 0, int(sheet.MaxRow)+1)
	rows = append(rows, header[:width])
	for i := 1; i <= int(sheet.MaxRow); i++ {
		rows = append(rows, xlsCells(xlsRow(sheet, i), width))
	}
	return sheet.Name, rows, nil
}

// xlsRow returns row i, or nil when the sheet has no such row
func xlsRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}

func xlsCells(row *xls.Row, width int) []string {
	cells := make([]string, width)
	if row == nil {
		return cells
	}
	for j := range cells {
		cells[j] = row.Col(j)
	}
	return cells
}
