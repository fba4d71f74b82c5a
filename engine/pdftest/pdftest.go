// Package pdftest builds small PDF files for tests. The documents are written
// object by object with a correct cross-reference table so every backend
// (MuPDF, PDFium, pdfcpu, ledongthuc/pdf) accepts them.
package pdftest

import (
	"bytes"
	"crypto/md5"
	"crypto/rc4"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zlib"
)

// Letter is the US letter page size in points
var Letter = Page{Width: 612, Height: 792}

// Image is an embedded DeviceRGB image filled with a single colour
type Image struct {
	Width  int
	Height int
}

// Page describes one page. A zero size falls back to Letter.
type Page struct {
	Width  float64
	Height float64
	Rotate int
	Images []Image
}

// Doc describes a whole document
type Doc struct {
	Title string
	// Rotate is set on the page tree root and inherited by every page
	Rotate int
	Pages  []Page
	// UserPassword encrypts the document (RC4 40 bit) when set
	UserPassword string
}

// Pages returns a document with n letter sized pages without images
func Pages(n int) Doc {
	doc := Doc{}
	for i := 0; i < n; i++ {
		doc.Pages = append(doc.Pages, Letter)
	}
	return doc
}

// Write stores the document in dir and returns its path
func (d Doc) Write(t testing.TB, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, d.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write test PDF %s: %v", path, err)
	}
	return path
}

// Bytes serialises the document
func (d Doc) Bytes() []byte {
	w := &writer{}
	w.buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	// Object numbers: 1 catalog, 2 page tree, 3 info, then pages
	const catalog, tree, info = 1, 2, 3
	next := 4
	var kids []string
	type layout struct {
		page, content int
		images        []int
	}
	layouts := make([]layout, len(d.Pages))
	for i, p := range d.Pages {
		l := layout{page: next, content: next + 1}
		next += 2
		for range p.Images {
			l.images = append(l.images, next)
			next++
		}
		layouts[i] = l
		kids = append(kids, fmt.Sprintf("%d 0 R", l.page))
	}

	w.object(catalog, fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", tree))

	treeDict := fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d", strings.Join(kids, " "), len(d.Pages))
	if d.Rotate != 0 {
		treeDict += fmt.Sprintf(" /Rotate %d", d.Rotate)
	}
	w.object(tree, treeDict+" >>")

	title := d.Title
	if title == "" {
		title = "pdftest"
	}
	w.object(info, fmt.Sprintf("<< /Title (%s) /Producer (pdftest) >>", title))

	for i, p := range d.Pages {
		l := layouts[i]
		width, height := p.Width, p.Height
		if width == 0 || height == 0 {
			width, height = Letter.Width, Letter.Height
		}

		var xobjects []string
		var content bytes.Buffer
		// A grey frame so a rendered page is never blank
		fmt.Fprintf(&content, "0.8 g 10 10 %.2f %.2f re f\n", width-20, height-20)
		for k, img := range p.Images {
			name := fmt.Sprintf("Im%d", k+1)
			xobjects = append(xobjects, fmt.Sprintf("/%s %d 0 R", name, l.images[k]))
			fmt.Fprintf(&content, "q %d 0 0 %d %d %d cm /%s Do Q\n", img.Width, img.Height, 20+k*10, 20+k*10, name)
		}

		pageDict := fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 %.2f %.2f] /Contents %d 0 R",
			tree, width, height, l.content)
		if p.Rotate != 0 {
			pageDict += fmt.Sprintf(" /Rotate %d", p.Rotate)
		}
		pageDict += " /Resources << /ProcSet [/PDF /ImageC]"
		if len(xobjects) > 0 {
			pageDict += " /XObject << " + strings.Join(xobjects, " ") + " >>"
		}
		pageDict += " >> >>"
		w.object(l.page, pageDict)
		w.stream(l.content, "", content.Bytes())

		for k, img := range p.Images {
			dict := fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /FlateDecode",
				img.Width, img.Height)
			w.stream(l.images[k], dict, deflate(solid(img.Width, img.Height, i+k)))
		}
	}

	trailer := fmt.Sprintf("/Size %d /Root %d 0 R /Info %d 0 R", next, catalog, info)
	if d.UserPassword != "" {
		encrypt := next
		next++
		id, dict := encryption(d.UserPassword)
		w.object(encrypt, dict)
		trailer = fmt.Sprintf("/Size %d /Root %d 0 R /Info %d 0 R /Encrypt %d 0 R /ID [<%x> <%x>]",
			next, catalog, info, encrypt, id, id)
	}

	xref := w.buf.Len()
	fmt.Fprintf(&w.buf, "xref\n0 %d\n", next)
	w.buf.WriteString("0000000000 65535 f \n")
	for n := 1; n < next; n++ {
		fmt.Fprintf(&w.buf, "%010d 00000 n \n", w.offsets[n])
	}
	fmt.Fprintf(&w.buf, "trailer\n<< %s >>\nstartxref\n%d\n%%%%EOF\n", trailer, xref)
	return w.buf.Bytes()
}

// Garbage returns bytes that carry a PDF extension but no PDF structure
func Garbage() []byte {
	return []byte("this is not a pdf file\n")
}

type writer struct {
	buf     bytes.Buffer
	offsets map[int]int
}

func (w *writer) object(num int, body string) {
	if w.offsets == nil {
		w.offsets = make(map[int]int)
	}
	w.offsets[num] = w.buf.Len()
	fmt.Fprintf(&w.buf, "%d 0 obj\n%s\nendobj\n", num, body)
}

func (w *writer) stream(num int, dict string, data []byte) {
	if w.offsets == nil {
		w.offsets = make(map[int]int)
	}
	w.offsets[num] = w.buf.Len()
	fmt.Fprintf(&w.buf, "%d 0 obj\n<< %s /Length %d >>\nstream\n", num, strings.TrimSpace(dict), len(data))
	w.buf.Write(data)
	w.buf.WriteString("\nendstream\nendobj\n")
}

// solid returns packed RGB samples of one colour chosen by seed
func solid(width, height, seed int) []byte {
	palette := [][3]byte{{200, 30, 30}, {30, 160, 60}, {40, 70, 200}, {220, 180, 20}}
	c := palette[seed%len(palette)]
	data := make([]byte, 0, width*height*3)
	for i := 0; i < width*height; i++ {
		data = append(data, c[0], c[1], c[2])
	}
	return data
}

func deflate(data []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(data)
	zw.Close()
	return buf.Bytes()
}

// passwordPadding is the 32 byte string from the standard security handler
var passwordPadding = []byte{
	0x28, 0xbf, 0x4e, 0x5e, 0x4e, 0x75, 0x8a, 0x41, 0x64, 0x00, 0x4e, 0x56, 0xff, 0xfa, 0x01, 0x08,
	0x2e, 0x2e, 0x00, 0xb6, 0xd0, 0x68, 0x3e, 0x80, 0x2f, 0x0c, 0xa9, 0xfe, 0x64, 0x53, 0x69, 0x7a,
}

func pad(password string) []byte {
	out := append([]byte(password), passwordPadding...)
	return out[:32]
}

func rc4Crypt(key, data []byte) []byte {
	c, _ := rc4.NewCipher(key)
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out
}

// encryption returns the file ID and the /Encrypt dictionary of a revision 2
// standard security handler. The owner password equals the user password.
func encryption(userPassword string) ([]byte, string) {
	id := md5.Sum([]byte("pdftest:" + userPassword))
	var perms int32 = -44

	ownerKey := md5.Sum(pad(userPassword))
	o := rc4Crypt(ownerKey[:5], pad(userPassword))

	h := md5.New()
	h.Write(pad(userPassword))
	h.Write(o)
	p := uint32(perms)
	h.Write([]byte{byte(p), byte(p >> 8), byte(p >> 16), byte(p >> 24)})
	h.Write(id[:])
	key := h.Sum(nil)[:5]
	u := rc4Crypt(key, passwordPadding)

	dict := fmt.Sprintf("<< /Filter /Standard /V 1 /R 2 /Length 40 /O <%x> /U <%x> /P %d >>", o, u, perms)
	return id[:], dict
}
