// internal/protocol/serial/boards.go
package serial

import "strings"

// BoardDatabase contains the USB identities of boards the wheel firmware runs on
type BoardDatabase struct {
	vendors map[string]*VendorInfo
}

// VendorInfo contains vendor-specific information
type VendorInfo struct {
	Name     string
	products map[string]*BoardInfo
}

// BoardInfo describes one known board
type BoardInfo struct {
	Model string
	// Bootloader is true for the short-lived port a board exposes while flashing
	Bootloader bool
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
	db.AddProduct("2341", "8036", &BoardInfo{Model: "Arduino Leonardo"})
	db.AddProduct("2341", "0036", &BoardInfo{Model: "Arduino Leonardo", Bootloader: true})
	db.AddProduct("2341", "8037", &BoardInfo{Model: "Arduino Micro"})
	db.AddProduct("2341", "0037", &BoardInfo{Model: "Arduino Micro", Bootloader: true})

	db.AddVendor("2A03", &VendorInfo{Name: "Arduino SRL"})
	db.AddProduct("2A03", "8036", &BoardInfo{Model: "Arduino Leonardo"})

	db.AddVendor("1B4F", &VendorInfo{Name: "SparkFun Electronics"})
	db.AddProduct("1B4F", "9206", &BoardInfo{Model: "SparkFun Pro Micro"})
	db.AddProduct("1B4F", "9205", &BoardInfo{Model: "SparkFun Pro Micro", Bootloader: true})
}

// IsKnownVendor checks if a vendor ID is in the database
func (db *BoardDatabase) IsKnownVendor(vid string) bool {
	_, exists := db.vendors[strings.ToUpper(vid)]
	return exists
}

// Lookup returns the board for a VID:PID pair, or nil
func (db *BoardDatabase) Lookup(vid, pid string) *BoardInfo {
	vendor, exists := db.vendors[strings.ToUpper(vid)]
	if !exists {
		return nil
	}
	return vendor.products[strings.ToUpper(pid)]
}

// AddVendor adds a new vendor to the database
func (db *BoardDatabase) AddVendor(vid string, info *VendorInfo) {
	if info.products == nil {
		info.products = make(map[string]*BoardInfo)
	}
	db.vendors[strings.ToUpper(vid)] = info
}

// AddProduct adds a new product to an existing vendor
func (db *BoardDatabase) AddProduct(vid, pid string, info *BoardInfo) {
	if vendor, exists := db.vendors[strings.ToUpper(vid)]; exists {
		vendor.products[strings.ToUpper(pid)] = info
	}
}
