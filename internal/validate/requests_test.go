package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rememberme/api/internal/apperr"
)

func assertInvalid(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	appErr := apperr.As(err)
	assert.Equal(t, apperr.KindInvalidArgument, appErr.Kind)
	assert.Equal(t, apperr.GenericDetails, appErr.Details)
}

func TestDecodeSaveRound(t *testing.T) {
	req, err := DecodeSaveRound([]byte(`{"roundId":"null","name":"  Daily  "}`))
	require.NoError(t, err)
	assert.Equal(t, SaveRound{RoundID: NewID, Name: "Daily"}, req)

	bad := []string{
		``,
		`[]`,
		`null`,
		`{"roundId":"null"}`,
		`{"roundId":"null","name":"x","extra":1}`,
		`{"roundId":1,"name":"x"}`,
		`{"roundId":"","name":"x"}`,
		`{"roundId":"../x","name":"x"}`,
		`{"roundId":"null","name":"   "}`,
		`{"roundId":"null","name":null}`,
		`{"roundId":"null","name":"` + strings.Repeat("a", 257) + `"}`,
	}
	for _, body := range bad {
		_, err := DecodeSaveRound([]byte(body))
		assertInvalid(t, err)
	}

	_, err = DecodeSaveRound([]byte(`{"roundId":"null","name":"` + strings.Repeat("\u00e9", 256) + `"}`))
	assert.NoError(t, err)
}

func TestDecodeSaveTask(t *testing.T) {
	req, err := DecodeSaveTask([]byte(`{"roundId":"r1","taskId":"null","task":{"description":" Drink coffee ","timesOfDay":["morning"," evening "],"daysOfTheWeek":127}}`))
	require.NoError(t, err)
	assert.Equal(t, "r1", req.RoundID)
	assert.Equal(t, NewID, req.TaskID)
	assert.Equal(t, Task{Description: "Drink coffee", TimesOfDay: []string{"morning", "evening"}, DaysOfTheWeek: AllDays}, req.Task)

	tooMany := `["a","b","c","d","e","f","g","h","i","j","k"]`
	cases := map[string]string{
		"missing task key":   `{"roundId":"r","taskId":"t","task":{"description":"d","timesOfDay":["a"]}}`,
		"days 128":           `{"roundId":"r","taskId":"t","task":{"description":"d","timesOfDay":["a"],"daysOfTheWeek":128}}`,
		"days negative":      `{"roundId":"r","taskId":"t","task":{"description":"d","timesOfDay":["a"],"daysOfTheWeek":-1}}`,
		"days fractional":    `{"roundId":"r","taskId":"t","task":{"description":"d","timesOfDay":["a"],"daysOfTheWeek":1.5}}`,
		"days as string":     `{"roundId":"r","taskId":"t","task":{"description":"d","timesOfDay":["a"],"daysOfTheWeek":"1"}}`,
		"no times of day":    `{"roundId":"r","taskId":"t","task":{"description":"d","timesOfDay":[],"daysOfTheWeek":1}}`,
		"too many times":     `{"roundId":"r","taskId":"t","task":{"description":"d","timesOfDay":` + tooMany + `,"daysOfTheWeek":1}}`,
		"duplicate times":    `{"roundId":"r","taskId":"t","task":{"description":"d","timesOfDay":["a"," a"],"daysOfTheWeek":1}}`,
		"blank time":         `{"roundId":"r","taskId":"t","task":{"description":"d","timesOfDay":[" "],"daysOfTheWeek":1}}`,
		"time not string":    `{"roundId":"r","taskId":"t","task":{"description":"d","timesOfDay":[1],"daysOfTheWeek":1}}`,
		"long description":   `{"roundId":"r","taskId":"t","task":{"description":"` + strings.Repeat("x", 101) + `","timesOfDay":["a"],"daysOfTheWeek":1}}`,
		"task not an object": `{"roundId":"r","taskId":"t","task":"nope"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeSaveTask([]byte(body))
			assertInvalid(t, err)
		})
	}
}

func TestDecodeNormalizesNFC(t *testing.T) {
	decomposed := "Cafe\u0301"
	composed := "Caf\u00e9"

	_, err := DecodeSaveTask([]byte(`{"roundId":"r","taskId":"t","task":{"description":"d","timesOfDay":["` + decomposed + `","` + composed + `"],"daysOfTheWeek":0}}`))
	assertInvalid(t, err)

	req, err := DecodeSaveTask([]byte(`{"roundId":"r","taskId":"t","task":{"description":"` + decomposed + `","timesOfDay":["x"],"daysOfTheWeek":0}}`))
	require.NoError(t, err)
	assert.Equal(t, composed, req.Task.Description)
}

func TestDecodeOrderRequests(t *testing.T) {
	rounds, err := DecodeSetRoundsOrder([]byte(`{"roundId":"r","moveBy":-2}`))
	require.NoError(t, err)
	assert.Equal(t, SetRoundsOrder{RoundID: "r", MoveBy: -2}, rounds)

	_, err = DecodeSetRoundsOrder([]byte(`{"roundId":"r","moveBy":0}`))
	assertInvalid(t, err)

	tod, err := DecodeSetTimesOfDayOrder([]byte(`{"roundId":"r","timeOfDay":" morning","moveBy":1}`))
	require.NoError(t, err)
	assert.Equal(t, SetTimesOfDayOrder{RoundID: "r", TimeOfDay: "morning", MoveBy: 1}, tod)

	_, err = DecodeSetTimesOfDayOrder([]byte(`{"roundId":"r","moveBy":1}`))
	assertInvalid(t, err)
}

func TestDecodeProgressRequests(t *testing.T) {
	req, err := DecodeSetProgress([]byte(`{"roundId":"r","day":"mon","taskId":"t","timeOfDay":"morning","checked":true}`))
	require.NoError(t, err)
	assert.Equal(t, SetProgress{RoundID: "r", Day: "mon", TaskID: "t", TimeOfDay: "morning", Checked: true}, req)

	_, err = DecodeSetProgress([]byte(`{"roundId":"r","day":"monday","taskId":"t","timeOfDay":"morning","checked":true}`))
	assertInvalid(t, err)
	_, err = DecodeSetProgress([]byte(`{"roundId":"r","day":"mon","taskId":"t","timeOfDay":"morning","checked":"yes"}`))
	assertInvalid(t, err)

	reset, err := DecodeResetToday([]byte(`{"roundId":"r","day":"sun"}`))
	require.NoError(t, err)
	assert.Equal(t, ResetToday{RoundID: "r", Day: "sun"}, reset)
}

func TestDeleteRequests(t *testing.T) {
	_, err := DecodeDeleteRound([]byte(`{"roundId":"r"}`))
	require.NoError(t, err)
	_, err = DecodeDeleteTask([]byte(`{"roundId":"r","taskId":"t","x":1}`))
	assertInvalid(t, err)
	assert.Equal(t, 127, AllDays)
}
