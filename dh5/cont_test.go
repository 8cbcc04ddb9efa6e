package dh5

import (
	"errors"
	"io/fs"
	"reflect"
	"testing"
)

var (
	testContData = [][]int16{
		{1, -1},
		{2, -2},
		{3, -3},
		{4, -4},
	}
	testContIndex = []ContIndexItem{
		{Time: 1000, Offset: 0},
		{Time: 50000, Offset: 2},
	}
	testChannels = []ChannelInfo{
		{GlobalChanNumber: 1, BoardChanNo: 0, ADCBitWidth: 16, MaxVoltageRange: 5, MinVoltageRange: -5, AmplifChan0: 1},
		{GlobalChanNumber: 2, BoardChanNo: 1, ADCBitWidth: 16, MaxVoltageRange: 5, MinVoltageRange: -5, AmplifChan0: 1},
	}
)

func addTestCont(t *testing.T, f *File, id int) *ContGroup {
	t.Helper()
	c, err := f.CreateContGroup(id, testContData, testContIndex, 1000, []float64{0.5, 2}, testChannels)
	if err != nil {
		t.Fatalf("CreateContGroup(%d) failed: %v", id, err)
	}
	return c
}

func TestCreateContGroup(t *testing.T) {
	f := newTestFile(t)
	addTestCont(t, f, 1)
	f = reopen(t, f)

	ids, err := f.ContGroupIDs()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []int{1}) {
		t.Fatalf("ContGroupIDs() = %v, want [1]", ids)
	}
	names, _ := f.ContGroupNames()
	if !reflect.DeepEqual(names, []string{"CONT1"}) {
		t.Errorf("ContGroupNames() = %v", names)
	}

	c, err := f.ContGroup(1)
	if err != nil {
		t.Fatal(err)
	}
	if c.Path() != "/CONT1" {
		t.Errorf("Path() = %q", c.Path())
	}

	n, ch, err := c.Size()
	if err != nil || n != 4 || ch != 2 {
		t.Errorf("Size() = %d, %d, %v; want 4, 2", n, ch, err)
	}

	data, err := c.Data()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(data, testContData) {
		t.Errorf("Data() = %v", data)
	}

	period, err := c.SamplePeriod()
	if err != nil || period != 1000 {
		t.Errorf("SamplePeriod() = %d, %v", period, err)
	}
	rate, _ := c.SamplingRate()
	if rate != 1e6 {
		t.Errorf("SamplingRate() = %v, want 1e6", rate)
	}

	cal, err := c.Calibration()
	if err != nil || !reflect.DeepEqual(cal, []float64{0.5, 2}) {
		t.Errorf("Calibration() = %v, %v", cal, err)
	}

	chans, err := c.Channels()
	if err != nil || !reflect.DeepEqual(chans, testChannels) {
		t.Errorf("Channels() = %+v, %v", chans, err)
	}

	index, err := c.Index()
	if err != nil || !reflect.DeepEqual(index, testContIndex) {
		t.Errorf("Index() = %v, %v", index, err)
	}
}

func TestCreateContGroupExists(t *testing.T) {
	f := newTestFile(t)
	addTestCont(t, f, 2)

	_, err := f.CreateContGroup(2, testContData, testContIndex, 1000, nil, nil)
	if !errors.Is(err, fs.ErrExist) {
		t.Fatalf("err = %v, want fs.ErrExist", err)
	}
}

func TestContDataSliceAndCalibration(t *testing.T) {
	f := newTestFile(t)
	c := addTestCont(t, f, 1)

	rows, err := c.DataSlice(1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if want := [][]int16{{2, -2}, {3, -3}}; !reflect.DeepEqual(rows, want) {
		t.Errorf("DataSlice(1, 2) = %v, want %v", rows, want)
	}

	if _, err := c.DataSlice(3, 2); err == nil {
		t.Error("DataSlice past the end succeeded")
	}

	scaled, err := c.CalibratedData()
	if err != nil {
		t.Fatal(err)
	}
	if want := []float64{1.5, -6}; !reflect.DeepEqual(scaled[2], want) {
		t.Errorf("CalibratedData()[2] = %v, want %v", scaled[2], want)
	}
}

func TestContRegionsAndSampleTime(t *testing.T) {
	f := newTestFile(t)
	c := addTestCont(t, f, 1)

	regions, err := c.Regions()
	if err != nil {
		t.Fatal(err)
	}
	want := []Region{{Start: 0, End: 2, Time: 1000}, {Start: 2, End: 4, Time: 50000}}
	if !reflect.DeepEqual(regions, want) {
		t.Errorf("Regions() = %+v, want %+v", regions, want)
	}

	tests := []struct {
		row  int
		want int64
	}{
		{0, 1000},
		{1, 2000},
		{2, 50000},
		{3, 51000},
	}
	for _, tt := range tests {
		got, err := c.SampleTime(tt.row)
		if err != nil {
			t.Errorf("SampleTime(%d) failed: %v", tt.row, err)
			continue
		}
		if got != tt.want {
			t.Errorf("SampleTime(%d) = %d, want %d", tt.row, got, tt.want)
		}
	}

	if _, err := c.SampleTime(4); err == nil {
		t.Error("SampleTime past the end succeeded")
	}
}

func TestScalarCalibrationBroadcasts(t *testing.T) {
	f := newTestFile(t)
	c, err := f.CreateContGroup(0, testContData, testContIndex, 500, []float64{0.25}, nil)
	if err != nil {
		t.Fatal(err)
	}
	cal, err := c.Calibration()
	if err != nil || !reflect.DeepEqual(cal, []float64{0.25, 0.25}) {
		t.Errorf("Calibration() = %v, %v", cal, err)
	}
}

func TestCreateEmptyContGroupAndWrite(t *testing.T) {
	f := newTestFile(t)
	_, err := f.CreateEmptyContGroup(5, ContGroupSpec{
		Samples:      6,
		Channels:     3,
		IndexItems:   1,
		SamplePeriod: 2000,
		Calibration:  []float64{1, 1, 1},
		Name:         "V1 array",
		SignalType:   SignalLFP,
	})
	if err != nil {
		t.Fatalf("CreateEmptyContGroup failed: %v", err)
	}

	if err := f.WriteContData(5, 2, [][]int16{{7, 8, 9}, {10, 11, 12}}); err != nil {
		t.Fatalf("WriteContData failed: %v", err)
	}
	if err := f.WriteContIndex(5, []ContIndexItem{{Time: 123, Offset: 0}}); err != nil {
		t.Fatalf("WriteContIndex failed: %v", err)
	}
	if err := f.WriteContData(5, 5, [][]int16{{1, 1, 1}, {1, 1, 1}}); err == nil {
		t.Error("WriteContData past the end succeeded")
	}
	if err := f.WriteContData(5, 0, [][]int16{{1, 1}}); err == nil {
		t.Error("WriteContData with wrong width succeeded")
	}

	f = reopen(t, f)
	c, err := f.ContGroup(5)
	if err != nil {
		t.Fatal(err)
	}
	if c.Name() != "V1 array" || c.SignalType() != SignalLFP {
		t.Errorf("Name() = %q, SignalType() = %q", c.Name(), c.SignalType())
	}
	data, err := c.Data()
	if err != nil {
		t.Fatal(err)
	}
	want := [][]int16{{0, 0, 0}, {0, 0, 0}, {7, 8, 9}, {10, 11, 12}, {0, 0, 0}, {0, 0, 0}}
	if !reflect.DeepEqual(data, want) {
		t.Errorf("Data() = %v, want %v", data, want)
	}
	index, _ := c.Index()
	if len(index) != 1 || index[0].Time != 123 {
		t.Errorf("Index() = %v", index)
	}
}

func TestContGroupIDsIgnoreNonCanonicalNames(t *testing.T) {
	f := newTestFile(t)
	addTestCont(t, f, 10)
	addTestCont(t, f, 2)
	for _, name := range []string{"CONT01", "CONTx", "CONT"} {
		if _, err := f.Root().CreateGroup(name); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.Root().CreateDataset("CONT3", []int32{1}); err != nil {
		t.Fatal(err)
	}

	ids, err := f.ContGroupIDs()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []int{2, 10}) {
		t.Errorf("ContGroupIDs() = %v, want [2 10]", ids)
	}
}

func TestCreateChunkedContGroup(t *testing.T) {
	f := newTestFile(t, WithChunkRows(3))
	addTestCont(t, f, 2)
	f = reopen(t, f)

	c, err := f.ContGroup(2)
	if err != nil {
		t.Fatal(err)
	}
	data, err := c.Data()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(data, testContData) {
		t.Errorf("Data() = %v, want %v", data, testContData)
	}
	rows, err := c.DataSlice(2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if want := testContData[2:4]; !reflect.DeepEqual(rows, want) {
		t.Errorf("DataSlice(2, 2) = %v, want %v", rows, want)
	}

	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	rw, err := OpenReadWrite(f.Path())
	if err != nil {
		t.Fatal(err)
	}
	defer rw.Close()
	if err := rw.WriteContData(2, 0, [][]int16{{9, 9}}); err == nil {
		t.Error("expected error writing into chunked DATA")
	}
}

func TestCreateEmptyContGroupIgnoresChunkRows(t *testing.T) {
	f := newTestFile(t, WithChunkRows(2))
	c, err := f.CreateEmptyContGroup(1, ContGroupSpec{Samples: 4, Channels: 2, IndexItems: 1, SamplePeriod: 1000})
	if err != nil {
		t.Fatal(err)
	}
	ds, err := c.Group().OpenDataset(dataName)
	if err != nil {
		t.Fatal(err)
	}
	if ds.Chunked() {
		t.Error("empty CONT DATA is chunked")
	}
	if err := f.WriteContData(1, 1, [][]int16{{3, 4}}); err != nil {
		t.Errorf("WriteContData failed: %v", err)
	}
}
