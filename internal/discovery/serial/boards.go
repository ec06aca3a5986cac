// internal/discovery/serial/boards.go - known printer controller boards
package serial

import "strings"

// BoardDatabase maps USB vendor/product IDs to printer controller boards
type BoardDatabase struct {
	vendors map[string]*VendorInfo
}

// VendorInfo contains vendor-specific information
type VendorInfo struct {
	Name     string
	products map[string]*BoardInfo
}

// BoardInfo describes a controller board or USB-serial bridge
type BoardInfo struct {
	Board string
	// Confidence is lower for generic bridges shared with non-printer hardware
	Confidence float64
}

// NewBoardDatabase creates and initializes the board database
func NewBoardDatabase() *BoardDatabase {
	db := &BoardDatabase{
		vendors: make(map[string]*VendorInfo),
	}
	db.initializeDatabase()
	return db
}

func (db *BoardDatabase) initializeDatabase() {
	db.AddVendor("2341", &VendorInfo{Name: "Arduino SA"})
	db.AddProduct("2341", "0010", &BoardInfo{Board: "Arduino Mega 2560", Confidence: 0.9})
	db.AddProduct("2341", "0042", &BoardInfo{Board: "Arduino Mega 2560 R3", Confidence: 0.9})
	db.AddProduct("2341", "003d", &BoardInfo{Board: "Arduino Due", Confidence: 0.8})
	db.AddProduct("2341", "0043", &BoardInfo{Board: "Arduino Uno R3", Confidence: 0.5})

	db.AddVendor("2c99", &VendorInfo{Name: "Prusa Research"})
	db.AddProduct("2c99", "0001", &BoardInfo{Board: "Original Prusa i3 MK3", Confidence: 0.95})
	db.AddProduct("2c99", "0002", &BoardInfo{Board: "Original Prusa MINI", Confidence: 0.95})

	db.AddVendor("0483", &VendorInfo{Name: "STMicroelectronics"})
	db.AddProduct("0483", "5740", &BoardInfo{Board: "STM32 virtual COM port", Confidence: 0.7})

	db.AddVendor("1d50", &VendorInfo{Name: "OpenMoko"})
	db.AddProduct("1d50", "6015", &BoardInfo{Board: "Smoothieboard", Confidence: 0.9})

	db.AddVendor("16c0", &VendorInfo{Name: "Van Ooijen Technische Informatica"})
	db.AddProduct("16c0", "0483", &BoardInfo{Board: "Teensy serial (Printrboard)", Confidence: 0.6})

	db.AddVendor("1a86", &VendorInfo{Name: "QinHeng Electronics"})
	db.AddProduct("1a86", "7523", &BoardInfo{Board: "CH340 serial bridge", Confidence: 0.6})
	db.AddProduct("1a86", "55d4", &BoardInfo{Board: "CH9102 serial bridge", Confidence: 0.5})

	db.AddVendor("0403", &VendorInfo{Name: "Future Technology Devices International"})
	db.AddProduct("0403", "6001", &BoardInfo{Board: "FT232R serial bridge", Confidence: 0.5})

	db.AddVendor("10c4", &VendorInfo{Name: "Silicon Labs"})
	db.AddProduct("10c4", "ea60", &BoardInfo{Board: "CP210x serial bridge", Confidence: 0.5})
}

// Lookup returns the board for a VID/PID pair, or nil when unknown
func (db *BoardDatabase) Lookup(vid, pid string) *BoardInfo {
	vendor := db.GetVendorInfo(vid)
	if vendor == nil {
		return nil
	}
	return vendor.products[normalizeID(pid)]
}

// IsKnownVendor checks if a vendor ID is in the database
func (db *BoardDatabase) IsKnownVendor(vid string) bool {
	return db.GetVendorInfo(vid) != nil
}

// GetVendorInfo retrieves vendor information
func (db *BoardDatabase) GetVendorInfo(vid string) *VendorInfo {
	return db.vendors[normalizeID(vid)]
}

// GetTotalProductCount returns total number of known boards
func (db *BoardDatabase) GetTotalProductCount() int {
	total := 0
	for _, vendor := range db.vendors {
		total += len(vendor.products)
	}
	return total
}

// AddVendor adds a new vendor to the database
func (db *BoardDatabase) AddVendor(vid string, info *VendorInfo) {
	if info.products == nil {
		info.products = make(map[string]*BoardInfo)
	}
	db.vendors[normalizeID(vid)] = info
}

// AddProduct adds a new board to an existing vendor
func (db *BoardDatabase) AddProduct(vid, pid string, info *BoardInfo) {
	if vendor, exists := db.vendors[normalizeID(vid)]; exists {
		vendor.products[normalizeID(pid)] = info
	}
}

// enumerators report IDs with or without 0x and in either case
func normalizeID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	return strings.TrimPrefix(id, "0x")
}
