// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fields

// Names of the fields in the report schema.
const (
	Reception = "recepcio"
	Start     = "inici"
	Recovery  = "recuperacio"
	Severity  = "criticitat"
	Summary   = "descripcio"
	Service   = "servei"
	ErrorText = "error"
)

// ReceptionLabels are the spellings monitoring emails use for the reception
// timestamp, with and without accents.
var ReceptionLabels = []string{"Recepció", "Recepcio", "Recepción", "Recepcion"}

// ReportSchema is the field set the notification and ledger layers read from
// a monitoring alert body.
var ReportSchema = MustCompile(
	Field{Name: Reception, Labels: ReceptionLabels, Kind: Timestamp, Layouts: []string{LayoutSeconds}},
	Field{Name: Start, Labels: append([]string{"Inici", "Inicio"}, ReceptionLabels...), Kind: Timestamp},
	Field{Name: Recovery, Labels: []string{"Recuperació", "Recuperacio", "Recuperación", "Recuperacion"}, Kind: Timestamp},
	Field{Name: Severity, Labels: []string{"Criticitat", "Criticidad", "Severitat"}},
	Field{Name: Summary, Labels: []string{"Descripció", "Descripcio", "Descripción", "Descripcion"}},
	Field{Name: Service, Labels: []string{"Servei", "Servicio"}},
	Field{Name: ErrorText, Labels: []string{"Error"}},
)
