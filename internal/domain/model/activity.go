package model

// Колонки выгрузки набора B. Ищутся в заголовке источника без учёта регистра.
const (
	ColTipoID          = "TIPO_ID"
	ColNumeroID        = "NUMERO_ID"
	ColPrimerNombre    = "PRIMER_NOMBRE"
	ColSegundoNombre   = "SEGUNDO_NOMBRE"
	ColPrimerApellido  = "PRIMER_APELLIDO"
	ColSegundoApellido = "SEGUNDO_APELLIDO"
	ColFechaNacimiento = "FECHA_NACIMIENTO"
	ColSexo            = "SEXO"
	ColTelefono        = "TELEFONO"
	ColActividad       = "ACTIVIDAD"
	ColFechaActividad  = "FECHA_ACTIVIDAD"
	ColObservaciones   = "OBSERVACIONES"
)

// ActivityColumns — фиксированная форма записи набора B в порядке выгрузки.
var ActivityColumns = []string{
	ColTipoID,
	ColNumeroID,
	ColPrimerNombre,
	ColSegundoNombre,
	ColPrimerApellido,
	ColSegundoApellido,
	ColFechaNacimiento,
	ColSexo,
	ColTelefono,
	ColActividad,
	ColFechaActividad,
	ColObservaciones,
}

// PendingActivity — типизированное представление записи набора B.
type PendingActivity struct {
	DocumentType   string `json:"tipo_id"`
	DocumentNumber string `json:"numero_id"`
	FirstName      string `json:"primer_nombre"`
	MiddleName     string `json:"segundo_nombre,omitempty"`
	FirstSurname   string `json:"primer_apellido"`
	SecondSurname  string `json:"segundo_apellido,omitempty"`
	BirthDate      string `json:"fecha_nacimiento,omitempty"`
	Sex            string `json:"sexo,omitempty"`
	Phone          string `json:"telefono,omitempty"`
	Activity       string `json:"actividad"`
	ActivityDate   string `json:"fecha_actividad,omitempty"`
	Notes          string `json:"observaciones,omitempty"`
	Handled        bool   `json:"status"`
}

// PendingActivityFromRecord строит типизированное представление записи набора B.
// Отсутствующие в источнике колонки дают пустые поля.
func PendingActivityFromRecord(r Record) PendingActivity {
	return PendingActivity{
		DocumentType:   r.Value(ColTipoID),
		DocumentNumber: r.Value(ColNumeroID),
		FirstName:      r.Value(ColPrimerNombre),
		MiddleName:     r.Value(ColSegundoNombre),
		FirstSurname:   r.Value(ColPrimerApellido),
		SecondSurname:  r.Value(ColSegundoApellido),
		BirthDate:      r.Value(ColFechaNacimiento),
		Sex:            r.Value(ColSexo),
		Phone:          r.Value(ColTelefono),
		Activity:       r.Value(ColActividad),
		ActivityDate:   r.Value(ColFechaActividad),
		Notes:          r.Value(ColObservaciones),
		Handled:        r.Status(),
	}
}
