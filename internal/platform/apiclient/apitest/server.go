// Package apitest runs an in-memory fake of the EHR API for tests. It speaks
// the same routes and JSON shapes as the real service, keeps its data in
// maps, and lets a test inject failures, count calls, and pause handlers.
package apitest

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// SessionCookie is the cookie name the API sets on login.
const SessionCookie = "ehr_session"

var allowedExtensions = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "gif": true, "pdf": true, "doc": true, "docx": true,
}

type Doctor struct {
	ID           int
	Name         string
	Email        string
	DoctorNumber string
	Password     string
}

type Patient struct {
	ID              int    `json:"id"`
	DoctorID        int    `json:"doctor_id"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	BirthDate       string `json:"birth_date"`
	InsuranceNumber string `json:"insurance_number"`
}

type Visit struct {
	ID             int    `json:"id"`
	PatientID      int    `json:"patient_id"`
	VisitDate      string `json:"visit_date"`
	VisitType      string `json:"visit_type"`
	ChiefComplaint string `json:"chief_complaint"`
	Notes          string `json:"notes"`
	DocumentCount  int    `json:"document_count"`
	CreatedAt      string `json:"created_at"`
}

type Document struct {
	ID          int    `json:"id"`
	VisitID     int    `json:"visit_id"`
	PatientID   int    `json:"patient_id"`
	FileName    string `json:"file_name"`
	FilePath    string `json:"file_path"`
	FileType    string `json:"file_type"`
	FileSize    int64  `json:"file_size"`
	Description string `json:"description"`
	UploadedAt  string `json:"uploaded_at"`

	// PartContentType is what the client declared for the file part.
	PartContentType string `json:"-"`
}

type SheetEntry struct {
	ID         int               `json:"id"`
	SheetType  string            `json:"sheet_type"`
	PatientID  int               `json:"patient_id"`
	VisitID    int               `json:"visit_id"`
	VisitDate  string            `json:"visit_date,omitempty"`
	Data       map[string]string `json:"data"`
	EditReason string            `json:"edit_reason"`
	CreatedAt  string            `json:"created_at"`
}

type failure struct {
	status  int
	message string
}

type Server struct {
	srv *httptest.Server

	mu        sync.Mutex
	nextID    int
	doctors   map[string]*Doctor
	sessions  map[string]int
	patients  map[int]*Patient
	visits    map[int]*Visit
	documents map[int]*Document
	files     map[string][]byte
	sheets    []*SheetEntry
	digestive map[int]map[string]any
	calls     map[string]int
	failures  map[string][]failure
	hooks     map[string]func()
	now       func() time.Time
}

// NewServer starts the fake. Callers must Close it.
func NewServer() *Server {
	s := &Server{
		nextID:    1,
		doctors:   make(map[string]*Doctor),
		sessions:  make(map[string]int),
		patients:  make(map[int]*Patient),
		visits:    make(map[int]*Visit),
		documents: make(map[int]*Document),
		files:     make(map[string][]byte),
		digestive: make(map[int]map[string]any),
		calls:     make(map[string]int),
		failures:  make(map[string][]failure),
		hooks:     make(map[string]func()),
		now:       time.Now,
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(s.intercept)

	api := e.Group("/api")
	api.POST("/login", s.login)
	api.POST("/register", s.register)
	api.POST("/logout", s.logout)
	api.GET("/check-auth", s.checkAuth)

	authed := api.Group("", s.requireLogin)
	authed.GET("/me", s.me)
	authed.POST("/patients/verify", s.verifyPatient)
	authed.POST("/patients", s.createPatient)
	authed.GET("/patients/:id", s.getPatient)
	authed.POST("/patients/:id/visits", s.createVisit)
	authed.GET("/visits/:id", s.getVisit)
	authed.POST("/visits/:id/documents", s.uploadDocument)
	authed.GET("/digestive/:pid", s.getDigestive)
	authed.POST("/digestive/:pid", s.saveDigestive)
	authed.GET("/sheets/entry/:id", s.getSheetEntry)
	authed.GET("/sheets/:type/:pid/latest", s.latestSheet)
	authed.GET("/sheets/:type/:pid/history", s.sheetHistory)
	authed.POST("/sheets/:type", s.saveSheet)

	e.GET("/static/uploads/:name", s.serveUpload)

	s.srv = httptest.NewServer(e)
	return s
}

func (s *Server) Close() { s.srv.Close() }

// URL is the API base, e.g. http://127.0.0.1:54321/api.
func (s *Server) URL() string { return s.srv.URL + "/api" }

// Origin is scheme://host of the fake.
func (s *Server) Origin() string { return s.srv.URL }

// Fail makes the next call to route answer with status and an error message.
// route is the registered pattern, e.g. "/api/patients/:id/visits".
func (s *Server) Fail(method, route string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + route
	s.failures[key] = append(s.failures[key], failure{status: status, message: message})
}

// OnRequest runs fn before every call to route. fn runs without the
// server lock, so it may block to hold a response back.
func (s *Server) OnRequest(method, route string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[method+" "+route] = fn
}

// Calls returns how many requests reached route.
func (s *Server) Calls(method, route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" "+route]
}

// SeedDoctor registers a doctor account.
func (s *Server) SeedDoctor(number, password, name string) *Doctor {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := &Doctor{ID: s.id(), Name: name, Email: number + "@clinic.test", DoctorNumber: number, Password: password}
	s.doctors[number] = d
	return d
}

// SeedPatient stores a patient owned by the given doctor.
func (s *Server) SeedPatient(doctorNumber, first, last, birthDate, insurance string) *Patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &Patient{
		ID:              s.id(),
		DoctorID:        s.doctors[doctorNumber].ID,
		FirstName:       first,
		LastName:        last,
		BirthDate:       birthDate,
		InsuranceNumber: insurance,
	}
	s.patients[p.ID] = p
	return p
}

// SeedVisit stores a visit for a patient.
func (s *Server) SeedVisit(patientID int, date, visitType, complaint string) *Visit {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := &Visit{ID: s.id(), PatientID: patientID, VisitDate: date, VisitType: visitType, ChiefComplaint: complaint, CreatedAt: s.stamp()}
	s.visits[v.ID] = v
	return v
}

// SeedSheet stores a sheet entry as if it had been saved earlier.
func (s *Server) SeedSheet(sheetType string, patientID, visitID int, data map[string]string) *SheetEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendSheet(sheetType, patientID, visitID, data, "New entry")
}

// SeedDigestive stores a record on the single-record digestive endpoint.
func (s *Server) SeedDigestive(patientID int, visitDate string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := map[string]any{"id": s.id(), "patient_id": patientID, "visit_date": visitDate, "smoker": 0, "insurance_type": "public"}
	for k, v := range fields {
		rec[k] = v
	}
	s.digestive[patientID] = rec
}

// Authorize puts a valid session cookie for doctorNumber into jar.
func (s *Server) Authorize(jar http.CookieJar, doctorNumber string) {
	s.mu.Lock()
	token := s.newSession(s.doctors[doctorNumber].ID)
	s.mu.Unlock()
	u, _ := url.Parse(s.srv.URL)
	jar.SetCookies(u, []*http.Cookie{{Name: SessionCookie, Value: token, Path: "/"}})
}

// ExpireSessions drops every session, as a server restart or timeout would.
func (s *Server) ExpireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]int)
}

// Patients returns a snapshot of stored patients.
func (s *Server) Patients() []Patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Patient, 0, len(s.patients))
	for _, p := range s.patients {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Visits returns a snapshot of stored visits for a patient.
func (s *Server) Visits(patientID int) []Visit {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Visit
	for _, v := range s.visitsOf(patientID) {
		out = append(out, *v)
	}
	return out
}

// SheetEntries returns every stored sheet entry, oldest first.
func (s *Server) SheetEntries() []SheetEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SheetEntry, 0, len(s.sheets))
	for _, e := range s.sheets {
		out = append(out, *e)
	}
	return out
}

// Digestive returns the stored digestive record for a patient.
func (s *Server) Digestive(patientID int) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.digestive[patientID]
}

// Documents returns stored documents for a visit.
func (s *Server) Documents(visitID int) []Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Document
	for _, d := range s.documentsOf(visitID) {
		out = append(out, *d)
	}
	return out
}

// -- middleware --

func (s *Server) intercept(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Request().Method + " " + c.Path()

		s.mu.Lock()
		s.calls[key]++
		hook := s.hooks[key]
		var fail *failure
		if queue := s.failures[key]; len(queue) > 0 {
			fail = &queue[0]
			s.failures[key] = queue[1:]
		}
		s.mu.Unlock()

		if hook != nil {
			hook()
		}
		if fail != nil {
			return c.JSON(fail.status, echo.Map{"error": fail.message})
		}
		return next(c)
	}
}

func (s *Server) requireLogin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, ok := s.doctorID(c); !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Not authenticated"})
		}
		return next(c)
	}
}

// -- auth --

func (s *Server) login(c echo.Context) error {
	var body struct {
		DoctorNumber string `json:"doctor_number"`
		Password     string `json:"password"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid body"})
	}
	s.mu.Lock()
	d, ok := s.doctors[body.DoctorNumber]
	if !ok || d.Password != body.Password {
		s.mu.Unlock()
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid credentials"})
	}
	token := s.newSession(d.ID)
	s.mu.Unlock()

	c.SetCookie(&http.Cookie{Name: SessionCookie, Value: token, Path: "/", HttpOnly: true})
	return c.JSON(http.StatusOK, echo.Map{"message": "Logged in", "doctor": echo.Map{"id": d.ID, "name": d.Name}})
}

func (s *Server) register(c echo.Context) error {
	var body struct {
		Name         string `json:"name"`
		Email        string `json:"email"`
		DoctorNumber string `json:"doctor_number"`
		Password     string `json:"password"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid body"})
	}
	if body.Name == "" || body.Email == "" || body.DoctorNumber == "" || body.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Missing fields"})
	}
	if len(body.Password) < 8 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Password must be at least 8 characters."})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.doctors[body.DoctorNumber]; exists {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Doctor number already exists."})
	}
	for _, d := range s.doctors {
		if d.Email == body.Email {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Email already exists."})
		}
	}
	s.doctors[body.DoctorNumber] = &Doctor{
		ID: s.id(), Name: body.Name, Email: body.Email, DoctorNumber: body.DoctorNumber, Password: body.Password,
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "Doctor registered"})
}

func (s *Server) logout(c echo.Context) error {
	if ck, err := c.Cookie(SessionCookie); err == nil {
		s.mu.Lock()
		delete(s.sessions, ck.Value)
		s.mu.Unlock()
	}
	c.SetCookie(&http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1})
	return c.JSON(http.StatusOK, echo.Map{"message": "Logged out"})
}

func (s *Server) checkAuth(c echo.Context) error {
	id, ok := s.doctorID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"authenticated": false})
	}
	return c.JSON(http.StatusOK, echo.Map{"authenticated": true, "doctor_id": id})
}

func (s *Server) me(c echo.Context) error {
	id, _ := s.doctorID(c)
	return c.JSON(http.StatusOK, echo.Map{"doctor_id": id})
}

// -- patients and visits --

func (s *Server) verifyPatient(c echo.Context) error {
	var body struct {
		InsuranceNumber string `json:"insurance_number"`
		BirthDate       string `json:"birth_date"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid body"})
	}
	if body.InsuranceNumber == "" || body.BirthDate == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Insurance number and birth date required"})
	}
	doctorID, _ := s.doctorID(c)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.patients {
		if p.DoctorID == doctorID && p.InsuranceNumber == body.InsuranceNumber && p.BirthDate == body.BirthDate {
			visits := s.visitsOf(p.ID)
			if len(visits) > 10 {
				visits = visits[:10]
			}
			return c.JSON(http.StatusOK, echo.Map{"verified": true, "patient": p, "visits": visits})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"verified": false, "error": "Patient not found with matching identifiers"})
}

func (s *Server) createPatient(c echo.Context) error {
	var body struct {
		FirstName       string `json:"first_name"`
		LastName        string `json:"last_name"`
		BirthDate       string `json:"birth_date"`
		InsuranceNumber string `json:"insurance_number"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid body"})
	}
	if body.FirstName == "" || body.LastName == "" || body.BirthDate == "" || body.InsuranceNumber == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Missing required fields"})
	}
	doctorID, _ := s.doctorID(c)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.patients {
		if p.DoctorID == doctorID && p.InsuranceNumber == body.InsuranceNumber {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Patient with this insurance number already exists"})
		}
	}
	p := &Patient{
		ID: s.id(), DoctorID: doctorID, FirstName: body.FirstName, LastName: body.LastName,
		BirthDate: body.BirthDate, InsuranceNumber: body.InsuranceNumber,
	}
	s.patients[p.ID] = p
	return c.JSON(http.StatusCreated, echo.Map{"message": "Patient created", "patient": p})
}

func (s *Server) getPatient(c echo.Context) error {
	id, _ := strconv.Atoi(c.Param("id"))
	doctorID, _ := s.doctorID(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[id]
	if !ok || p.DoctorID != doctorID {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Patient not found"})
	}
	return c.JSON(http.StatusOK, echo.Map{"patient": p, "visits": s.visitsOf(id)})
}

func (s *Server) createVisit(c echo.Context) error {
	id, _ := strconv.Atoi(c.Param("id"))
	var body struct {
		VisitDate      string `json:"visit_date"`
		VisitType      string `json:"visit_type"`
		ChiefComplaint string `json:"chief_complaint"`
		Notes          string `json:"notes"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid body"})
	}
	doctorID, _ := s.doctorID(c)

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[id]
	if !ok || p.DoctorID != doctorID {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Patient not found"})
	}
	if body.VisitDate == "" {
		body.VisitDate = s.now().Format("2006-01-02")
	}
	if body.VisitType == "" {
		body.VisitType = "general"
	}
	v := &Visit{
		ID: s.id(), PatientID: id, VisitDate: body.VisitDate, VisitType: body.VisitType,
		ChiefComplaint: body.ChiefComplaint, Notes: body.Notes, CreatedAt: s.stamp(),
	}
	s.visits[v.ID] = v
	return c.JSON(http.StatusCreated, echo.Map{"message": "Visit created", "visit": v})
}

func (s *Server) getVisit(c echo.Context) error {
	id, _ := strconv.Atoi(c.Param("id"))
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visits[id]
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Visit not found"})
	}
	docs := s.documentsOf(id)
	if docs == nil {
		docs = []*Document{}
	}
	return c.JSON(http.StatusOK, echo.Map{"visit": v, "documents": docs})
}

func (s *Server) uploadDocument(c echo.Context) error {
	id, _ := strconv.Atoi(c.Param("id"))

	s.mu.Lock()
	v, ok := s.visits[id]
	s.mu.Unlock()
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Visit not found"})
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "No file provided"})
	}
	if fh.Filename == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "No file selected"})
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fh.Filename)), ".")
	if !allowedExtensions[ext] {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "File type not allowed"})
	}
	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to save file: " + err.Error()})
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to save file: " + err.Error()})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	name := fmt.Sprintf("%d_%s", s.id(), fh.Filename)
	path := "static/uploads/" + name
	s.files[name] = content
	d := &Document{
		ID: s.id(), VisitID: id, PatientID: v.PatientID, FileName: fh.Filename, FilePath: path,
		FileType: ext, FileSize: int64(len(content)), Description: c.FormValue("description"),
		UploadedAt: s.stamp(), PartContentType: fh.Header.Get("Content-Type"),
	}
	s.documents[d.ID] = d
	return c.JSON(http.StatusCreated, echo.Map{"message": "Document uploaded", "document": d})
}

func (s *Server) serveUpload(c echo.Context) error {
	s.mu.Lock()
	content, ok := s.files[c.Param("name")]
	s.mu.Unlock()
	if !ok {
		return c.NoContent(http.StatusNotFound)
	}
	return c.Blob(http.StatusOK, http.DetectContentType(content), content)
}

// -- sheets --

func (s *Server) getDigestive(c echo.Context) error {
	pid, _ := strconv.Atoi(c.Param("pid"))
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.digestive[pid]; ok {
		return c.JSON(http.StatusOK, rec)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":                     nil,
		"patient_id":             pid,
		"visit_date":             s.now().Format("2006-01-02"),
		"digestive_inspection":   "Normal",
		"digestive_auscultation": "Normal abdomen noises",
		"digestive_palpation":    "Little pain on the right lower area",
		"liver":                  "No hepatomegaly.",
		"rectal":                 "",
		"smoker":                 0,
		"insurance_type":         "public",
		"notes":                  "",
		"image_path":             "",
	})
}

func (s *Server) saveDigestive(c echo.Context) error {
	pid, _ := strconv.Atoi(c.Param("pid"))
	var body map[string]any
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil || body == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid body"})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id()
	if prev, ok := s.digestive[pid]; ok {
		id = prev["id"].(int)
	}
	body["id"] = id
	body["patient_id"] = pid
	s.digestive[pid] = body
	return c.JSON(http.StatusOK, echo.Map{"message": "Saved"})
}

func (s *Server) getSheetEntry(c echo.Context) error {
	id, _ := strconv.Atoi(c.Param("id"))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.sheets {
		if e.ID == id {
			return c.JSON(http.StatusOK, e)
		}
	}
	return c.JSON(http.StatusNotFound, echo.Map{"error": "Entry not found"})
}

func (s *Server) latestSheet(c echo.Context) error {
	sheetType := c.Param("type")
	pid, _ := strconv.Atoi(c.Param("pid"))
	visitID, _ := strconv.Atoi(c.QueryParam("visit_id"))

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sheets) - 1; i >= 0; i-- {
		e := s.sheets[i]
		if e.SheetType != sheetType || e.PatientID != pid {
			continue
		}
		if visitID != 0 && e.VisitID != visitID {
			continue
		}
		return c.JSON(http.StatusOK, e)
	}
	return c.JSON(http.StatusNotFound, echo.Map{"error": "No entry found"})
}

func (s *Server) sheetHistory(c echo.Context) error {
	sheetType := c.Param("type")
	pid, _ := strconv.Atoi(c.Param("pid"))

	s.mu.Lock()
	defer s.mu.Unlock()
	history := []*SheetEntry{}
	for i := len(s.sheets) - 1; i >= 0; i-- {
		e := s.sheets[i]
		if e.SheetType == sheetType && e.PatientID == pid {
			history = append(history, e)
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"history": history})
}

func (s *Server) saveSheet(c echo.Context) error {
	var body struct {
		PatientID  int               `json:"patient_id"`
		VisitID    int               `json:"visit_id"`
		Data       map[string]string `json:"data"`
		EditReason string            `json:"edit_reason"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid body"})
	}
	if body.PatientID == 0 || body.VisitID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "patient_id and visit_id required"})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.appendSheet(c.Param("type"), body.PatientID, body.VisitID, body.Data, body.EditReason)
	return c.JSON(http.StatusCreated, echo.Map{"message": "Sheet saved", "id": e.ID})
}

// -- helpers; callers hold s.mu --

func (s *Server) id() int {
	id := s.nextID
	s.nextID++
	return id
}

func (s *Server) stamp() string {
	return s.now().UTC().Format("2006-01-02 15:04:05")
}

func (s *Server) newSession(doctorID int) string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	token := hex.EncodeToString(b)
	s.sessions[token] = doctorID
	return token
}

func (s *Server) doctorID(c echo.Context) (int, bool) {
	ck, err := c.Cookie(SessionCookie)
	if err != nil {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.sessions[ck.Value]
	return id, ok
}

func (s *Server) visitsOf(patientID int) []*Visit {
	var out []*Visit
	for _, v := range s.visits {
		if v.PatientID == patientID {
			v.DocumentCount = len(s.documentsOf(v.ID))
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].VisitDate != out[j].VisitDate {
			return out[i].VisitDate > out[j].VisitDate
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *Server) documentsOf(visitID int) []*Document {
	var out []*Document
	for _, d := range s.documents {
		if d.VisitID == visitID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Server) appendSheet(sheetType string, patientID, visitID int, data map[string]string, reason string) *SheetEntry {
	e := &SheetEntry{
		ID: s.id(), SheetType: sheetType, PatientID: patientID, VisitID: visitID,
		Data: data, EditReason: reason, CreatedAt: s.stamp(),
	}
	if v, ok := s.visits[visitID]; ok {
		e.VisitDate = v.VisitDate
	}
	s.sheets = append(s.sheets, e)
	return e
}
